// Package labels loads the label table that maps model output positions to
// class names.
package labels

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

// Metadata is the JSON document exported next to a model.
type Metadata struct {
	InputShape         []int64             `json:"input_shape"`
	OutputShape        []int64             `json:"output_shape"`
	Classes            []string            `json:"classes"`
	ImageSize          int                 `json:"image_size"`
	OutputQuantization *model.Quantization `json:"output_quantization,omitempty"`
}

// Load reads a label table. JSON files are parsed as Metadata; any other
// file is read as one label per non-empty line.
func Load(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		meta, err := LoadMetadata(path)
		if err != nil {
			return nil, err
		}
		return meta.Classes, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, errors.New("label file is empty: " + path)
	}
	return labels, nil
}

// LoadMetadata reads a metadata JSON document.
func LoadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(meta.Classes) == 0 {
		return meta, errors.New("metadata has no classes: " + path)
	}
	return meta, nil
}
