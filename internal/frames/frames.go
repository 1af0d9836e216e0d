// Package frames finds and decodes captured images on disk.
package frames

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// List returns the image files at path. A file path is returned as is; a
// directory yields its JPEG and PNG files sorted by name.
func List(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Frame is a decoded image with the facts recorded about reading it.
type Frame struct {
	Path   string
	Format string
	Size   int64
	Image  image.Image
}

// Read loads and decodes the image at path.
func Read(path string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Frame{
		Path:   path,
		Format: format,
		Size:   int64(len(data)),
		Image:  img,
	}, nil
}
