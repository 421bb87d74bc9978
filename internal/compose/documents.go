package compose

import (
	"encoding/json"
	"fmt"
	"os"
)

// InstanceRecord ties one placed instance's mask color key to its label. The
// order of records within an image follows placement z-order (first placed =
// furthest back).
type InstanceRecord struct {
	ColorKey      string `json:"color_key"`
	Category      string `json:"category"`
	SuperCategory string `json:"super_category"`
}

// ImageRecord describes one generated composite and its mask.
// FileName and MaskFileName are slash-separated paths relative to the
// output directory.
type ImageRecord struct {
	ID           int              `json:"id"`
	FileName     string           `json:"file_name"`
	MaskFileName string           `json:"mask"`
	Width        int              `json:"width"`
	Height       int              `json:"height"`
	Instances    []InstanceRecord `json:"instances"`
}

// MaskDefinitions is the document linking every mask image to the color keys
// and labels of the instances it contains. It is the contract between the
// composition stage and the annotation converter.
type MaskDefinitions struct {
	Images          []ImageRecord       `json:"images"`
	SuperCategories map[string][]string `json:"super_categories"`
}

// RunParams captures the generation parameters embedded in dataset_info so a
// dataset is reproducible from its own metadata.
type RunParams struct {
	Count            int     `json:"count"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	OverlapThreshold float64 `json:"overlap_threshold"`
	Seed             int64   `json:"seed"`
	MinInstances     int     `json:"min_instances"`
	MaxInstances     int     `json:"max_instances"`
	OutputType       string  `json:"output_type"`
}

// DatasetInfo is the run-level document: free-form description fields, the
// parameters the dataset was generated with, and the label taxonomy.
type DatasetInfo struct {
	Description     string              `json:"description"`
	Version         string              `json:"version"`
	Contributor     string              `json:"contributor,omitempty"`
	Created         string              `json:"date_created"`
	Params          RunParams           `json:"params"`
	SuperCategories map[string][]string `json:"super_categories"`
}

// WriteJSON writes v to path as indented JSON. Map keys marshal in sorted
// order, so documents with identical content are byte-identical.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadMaskDefinitions loads a mask_definitions.json document.
func ReadMaskDefinitions(path string) (*MaskDefinitions, error) {
	var defs MaskDefinitions
	if err := readJSON(path, &defs); err != nil {
		return nil, err
	}
	return &defs, nil
}

// ReadDatasetInfo loads a dataset_info.json document.
func ReadDatasetInfo(path string) (*DatasetInfo, error) {
	var info DatasetInfo
	if err := readJSON(path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
