package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "text file",
			file:    "labels.txt",
			content: "soda_cans\nwater_bottle\n\n  other \n",
			want:    []string{"soda_cans", "water_bottle", "other"},
		},
		{
			name:    "metadata json",
			file:    "model_metadata.json",
			content: `{"classes":["metal","plastic"],"input_shape":[1,224,224,3],"image_size":224}`,
			want:    []string{"metal", "plastic"},
		},
		{
			name:    "empty text file",
			file:    "labels.txt",
			content: "\n\n",
			wantErr: true,
		},
		{
			name:    "metadata without classes",
			file:    "meta.JSON",
			content: `{"image_size":224}`,
			wantErr: true,
		},
		{
			name:    "broken json",
			file:    "meta.json",
			content: `{"classes":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(writeFile(t, tt.file, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMetadata_Quantization(t *testing.T) {
	path := writeFile(t, "meta.json", `{
		"classes": ["metal", "plastic"],
		"output_shape": [1, 2],
		"output_quantization": {"scale": 0.00390625, "zero_point": 0}
	}`)

	meta, err := LoadMetadata(path)
	require.NoError(t, err)
	require.NotNil(t, meta.OutputQuantization)
	assert.Equal(t, model.Quantization{Scale: 0.00390625, ZeroPoint: 0}, *meta.OutputQuantization)
	assert.Equal(t, []int64{1, 2}, meta.OutputShape)
}
