package model

import "errors"

var (
	// ErrModelLoad is returned when a model cannot be opened, parsed, or does
	// not have the shape the classifier expects.
	ErrModelLoad = errors.New("model load failed")

	// ErrUnsupportedPlatform is returned when an accelerator is requested but
	// is not available on the host.
	ErrUnsupportedPlatform = errors.New("accelerator not supported on this platform")

	// ErrInference is returned when the engine fails to run the model.
	ErrInference = errors.New("inference failed")

	// ErrInvalidInput is returned for inputs that cannot be classified, such
	// as an empty image or a tensor of the wrong size.
	ErrInvalidInput = errors.New("invalid input")
)
