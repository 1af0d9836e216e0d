package model

import (
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
)

// Classifier runs an image-classification model and turns its output into
// ranked, filtered categories.
//
// A Classifier owns its engine and is not safe for concurrent use; callers
// that share one must serialize calls.
type Classifier struct {
	engine Engine
	labels []string
	opts   Options
	allow  labelSet
	deny   labelSet

	input  TensorInfo
	output TensorInfo

	inputHeight   int
	inputWidth    int
	inputChannels int
}

// NewClassifier opens modelPath with open and prepares a classifier for it.
// labels must be index-aligned with the model's output tensor.
func NewClassifier(modelPath string, labels []string, opts Options, open Opener) (*Classifier, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: empty label table", ErrModelLoad)
	}
	if open == nil {
		return nil, fmt.Errorf("%w: no inference engine configured", ErrModelLoad)
	}

	engine, err := open(modelPath, EngineOptions{
		NumThreads:        opts.NumThreads,
		EnableAccelerator: opts.EnableAccelerator,
	})
	if err != nil {
		return nil, wrapErr(ErrModelLoad, "open "+modelPath, err)
	}

	c := &Classifier{
		engine: engine,
		labels: append([]string(nil), labels...),
		opts:   opts,
		allow:  newLabelSet(opts.LabelAllowList),
		deny:   newLabelSet(opts.LabelDenyList),
		input:  engine.InputInfo(),
		output: engine.OutputInfo(),
	}

	if err := c.checkShapes(); err != nil {
		engine.Close()
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}

	logrus.WithFields(logrus.Fields{
		"model":            modelPath,
		"input_shape":      c.input.Shape,
		"input_type":       c.input.Type.String(),
		"output_type":      c.output.Type.String(),
		"labels":           len(c.labels),
		"quantized_output": c.output.Quantized(),
	}).Info("classifier ready")

	return c, nil
}

func (c *Classifier) checkShapes() error {
	shape := c.input.Shape
	if len(shape) != 4 {
		return fmt.Errorf("%w: input tensor must be rank 4 (batch, height, width, channels), got shape %v", ErrModelLoad, shape)
	}
	c.inputHeight, c.inputWidth, c.inputChannels = shape[1], shape[2], shape[3]
	if c.inputHeight <= 0 || c.inputWidth <= 0 {
		return fmt.Errorf("%w: input tensor has no usable height/width: %v", ErrModelLoad, shape)
	}
	if c.inputChannels != 3 {
		return fmt.Errorf("%w: input tensor must be channel-last with 3 channels, got shape %v", ErrModelLoad, shape)
	}
	if n := c.output.Size(); n != len(c.labels) {
		return fmt.Errorf("%w: output tensor has %d classes but label table has %d", ErrModelLoad, n, len(c.labels))
	}
	return nil
}

// Labels returns a copy of the label table.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// InputSize returns the height, width, and channel count the model expects.
func (c *Classifier) InputSize() (height, width, channels int) {
	return c.inputHeight, c.inputWidth, c.inputChannels
}

// Classify preprocesses img, runs the model, and postprocesses the output.
func (c *Classifier) Classify(img image.Image) (Result, error) {
	in, err := c.Preprocess(img)
	if err != nil {
		return Result{}, err
	}
	return c.ClassifyTensor(in)
}

// ClassifyTensor runs the model on an already preprocessed input tensor.
func (c *Classifier) ClassifyTensor(in Tensor) (Result, error) {
	if want := c.inputHeight * c.inputWidth * c.inputChannels; len(in.Values) != want {
		return Result{}, fmt.Errorf("%w: expected %d input values, got %d", ErrInvalidInput, want, len(in.Values))
	}
	if len(in.Shape) == 0 {
		in.Shape = []int{c.inputHeight, c.inputWidth, c.inputChannels}
		in.Type = c.input.Type
	}

	if err := c.engine.SetInput(in); err != nil {
		return Result{}, wrapErr(ErrInference, "set input", err)
	}
	if err := c.engine.Invoke(); err != nil {
		return Result{}, wrapErr(ErrInference, "invoke", err)
	}
	out, err := c.engine.Output()
	if err != nil {
		return Result{}, wrapErr(ErrInference, "read output", err)
	}
	if len(out.Values) != len(c.labels) {
		return Result{}, fmt.Errorf("%w: output has %d values, expected %d", ErrInference, len(out.Values), len(c.labels))
	}

	return Result{
		Categories:    c.Postprocess(out),
		TopPrediction: c.labels[argmax(out.Values)],
	}, nil
}

// Close releases the engine.
func (c *Classifier) Close() error {
	if c.engine == nil {
		return nil
	}
	err := c.engine.Close()
	c.engine = nil
	return err
}

// argmax returns the index of the largest value, preferring the first
// occurrence on ties.
func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// wrapErr wraps err with kind unless it already carries one of the
// package's error kinds.
func wrapErr(kind error, op string, err error) error {
	for _, known := range []error{ErrModelLoad, ErrUnsupportedPlatform, ErrInference, ErrInvalidInput} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
