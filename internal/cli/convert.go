package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synthgrove/synthgen/internal/annotate"
	"github.com/synthgrove/synthgen/internal/catalog"
	"github.com/synthgrove/synthgen/internal/compose"
	"github.com/synthgrove/synthgen/internal/imageio"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert masks into a COCO instance annotation document",
	Long: "Convert reads mask_definitions.json, dataset_info.json, and the mask images " +
		"from a generated dataset directory and writes a COCO-compatible annotation document.",
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().String("dataset", "", "dataset directory produced by 'synthgen generate'")
	convertCmd.Flags().String("annotations", "", "output annotation file (default <dataset>/coco_instances.json)")
	convertCmd.Flags().Bool("catalog", true, "append the conversion outcome to <dataset>/catalog.db")

	for _, name := range []string{"dataset", "annotations", "catalog"} {
		_ = viper.BindPFlag("convert."+name, convertCmd.Flags().Lookup(name))
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	datasetDir := viper.GetString("convert.dataset")
	if datasetDir == "" {
		return fmt.Errorf("--dataset is required")
	}
	outPath := viper.GetString("convert.annotations")
	if outPath == "" {
		outPath = filepath.Join(datasetDir, "coco_instances.json")
	}

	info, err := compose.ReadDatasetInfo(filepath.Join(datasetDir, "dataset_info.json"))
	if err != nil {
		return err
	}
	defs, err := compose.ReadMaskDefinitions(filepath.Join(datasetDir, "mask_definitions.json"))
	if err != nil {
		return err
	}

	doc, report, err := annotate.Convert(info, defs, datasetDir, imageio.NewCache())
	if err != nil {
		return err
	}

	if err := compose.WriteJSON(outPath, doc); err != nil {
		return err
	}
	log.Printf("wrote %s: %d images, %d categories, %d annotations (%d occluded dropped, %d degenerate dropped)",
		outPath, report.Images, len(doc.Categories), report.Annotations, report.OccludedDropped, report.DegenerateDrops)

	if viper.GetBool("convert.catalog") {
		if err := appendConversion(cmd, datasetDir, *report); err != nil {
			log.Printf("warning: could not record conversion in catalog: %v", err)
		}
	}
	return nil
}

// appendConversion attaches the conversion outcome to the generation run
// recorded in the dataset's catalog, if that catalog exists.
func appendConversion(cmd *cobra.Command, datasetDir string, report annotate.Report) error {
	dbPath := filepath.Join(datasetDir, "catalog.db")
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}

	cat, err := catalog.Open(dbPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	run, err := cat.LastRun(cmd.Context())
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("catalog has no recorded runs")
	}
	if err != nil {
		return err
	}
	return cat.RecordConversion(cmd.Context(), run.ID, report)
}
