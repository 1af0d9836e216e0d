package model

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

const (
	inputMean = 127.5
	inputStd  = 127.5
)

// Preprocess resizes img to the model's input size and packs it into a
// channel-last tensor without a batch dimension. Float models get each
// channel normalized to [-1, 1]; quantized models get raw 0-255 values.
func (c *Classifier) Preprocess(img image.Image) (Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return Tensor{}, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	width, height := c.inputWidth, c.inputHeight
	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	bounds := resized.Bounds()

	values := make([]float32, height*width*c.inputChannels)
	normalize := !c.input.Quantized()

	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			for _, v := range [3]uint32{r >> 8, g >> 8, b >> 8} {
				px := float32(v)
				if normalize {
					px = (px - inputMean) / inputStd
				}
				values[i] = px
				i++
			}
		}
	}

	return Tensor{
		Shape:  []int{height, width, c.inputChannels},
		Type:   c.input.Type,
		Values: values,
	}, nil
}
