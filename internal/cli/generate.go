package cli

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synthgrove/synthgen/internal/assets"
	"github.com/synthgrove/synthgen/internal/catalog"
	"github.com/synthgrove/synthgen/internal/compose"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compose synthetic images and instance masks",
	Long: "Generate scans the input directory (foregrounds/<super_category>/<category>/*.png " +
		"and backgrounds/), composites the requested number of synthetic images, and writes " +
		"composites, masks, mask_definitions.json, and dataset_info.json to the output directory.",
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("input", "", "input directory containing foregrounds/ and backgrounds/")
	generateCmd.Flags().String("output", "", "output directory for the generated dataset")
	generateCmd.Flags().Int("count", 1, "number of composite images to generate")
	generateCmd.Flags().Int("width", 512, "output image width in pixels")
	generateCmd.Flags().Int("height", 512, "output image height in pixels")
	generateCmd.Flags().Float64("overlap", 0.3, "maximum fraction of a new instance allowed to cover placed instances")
	generateCmd.Flags().Int64("seed", 1, "random seed (same seed + assets + parameters reproduces the dataset)")
	generateCmd.Flags().Int("min-instances", 1, "minimum foreground instances per image")
	generateCmd.Flags().Int("max-instances", 3, "maximum foreground instances per image")
	generateCmd.Flags().String("output-type", ".jpg", "composite file type: .jpg or .png (masks are always .png)")
	generateCmd.Flags().Int("workers", 0, "parallel image workers (0 = number of CPUs)")
	generateCmd.Flags().Bool("catalog", true, "record run provenance in <output>/catalog.db")
	generateCmd.Flags().Bool("force", false, "overwrite an output directory that already holds a dataset")
	generateCmd.Flags().String("description", "", "dataset description for dataset_info.json")
	generateCmd.Flags().String("dataset-version", "1.0", "dataset version for dataset_info.json")
	generateCmd.Flags().String("contributor", "", "dataset contributor for dataset_info.json")

	for _, name := range []string{"input", "output", "count", "width", "height", "overlap", "seed",
		"min-instances", "max-instances", "output-type", "workers", "catalog", "force",
		"description", "dataset-version", "contributor"} {
		_ = viper.BindPFlag("generate."+name, generateCmd.Flags().Lookup(name))
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	inputDir := viper.GetString("generate.input")
	if inputDir == "" {
		return fmt.Errorf("--input is required")
	}
	outputDir := viper.GetString("generate.output")
	if outputDir == "" {
		return fmt.Errorf("--output is required")
	}
	if !viper.GetBool("generate.force") {
		if _, err := os.Stat(filepath.Join(outputDir, "mask_definitions.json")); err == nil {
			return fmt.Errorf("%s already holds a dataset; use --force to overwrite", outputDir)
		}
	}

	cfg := compose.Config{
		Count:            viper.GetInt("generate.count"),
		Width:            viper.GetInt("generate.width"),
		Height:           viper.GetInt("generate.height"),
		OverlapThreshold: viper.GetFloat64("generate.overlap"),
		Seed:             viper.GetInt64("generate.seed"),
		MinInstances:     viper.GetInt("generate.min-instances"),
		MaxInstances:     viper.GetInt("generate.max-instances"),
		OutputDir:        outputDir,
		OutputType:       viper.GetString("generate.output-type"),
		Workers:          viper.GetInt("generate.workers"),
		Progress:         true,
		Transform:        compose.DefaultTransformConfig(),
		Description:      viper.GetString("generate.description"),
		Version:          viper.GetString("generate.dataset-version"),
		Contributor:      viper.GetString("generate.contributor"),
	}
	if err := viper.UnmarshalKey("transform", &cfg.Transform); err != nil {
		return fmt.Errorf("invalid transform configuration: %w", err)
	}

	lib, err := assets.Scan(inputDir)
	if err != nil {
		return err
	}
	log.Printf("asset library: %d categories, %d backgrounds", len(lib.Categories()), len(lib.Backgrounds()))

	engine, err := compose.NewEngine(cfg, lib)
	if err != nil {
		return err
	}

	// Ctrl-C abandons unstarted images; completed ones are kept and flushed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := engine.Generate(ctx)
	if err != nil {
		return err
	}

	report := result.Report
	log.Printf("generated %d images (%d instances placed, %d skipped, %d images failed, %d abandoned) in %s",
		report.Generated, report.Placed, report.Skipped, report.Failed, report.Abandoned, report.Elapsed.Round(time.Millisecond))
	for _, skip := range report.Skips {
		log.Printf("skipped: image %d %s/%s: %s", skip.ImageID, skip.SuperCategory, skip.Category, skip.Reason)
	}

	if viper.GetBool("generate.catalog") {
		cat, err := catalog.Open(filepath.Join(outputDir, "catalog.db"))
		if err != nil {
			return err
		}
		defer cat.Close()

		runID, err := cat.RecordGeneration(cmd.Context(), result.DatasetInfo, result.MaskDefinitions, report)
		if err != nil {
			return err
		}
		log.Printf("run recorded in catalog as run %d", runID)
	}
	return nil
}
