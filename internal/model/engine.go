package model

// Engine executes a loaded model. Implementations are not safe for
// concurrent use.
type Engine interface {
	InputInfo() TensorInfo
	OutputInfo() TensorInfo

	// SetInput copies an unbatched input tensor into the engine, adding the
	// batch dimension.
	SetInput(t Tensor) error

	// Invoke runs the model synchronously.
	Invoke() error

	// Output returns the first output tensor with the batch dimension
	// squeezed away.
	Output() (Tensor, error)

	Close() error
}

// EngineOptions are passed to an engine when the model is opened.
type EngineOptions struct {
	NumThreads        int
	EnableAccelerator bool
}

// Opener loads a model file into an Engine.
type Opener func(modelPath string, opts EngineOptions) (Engine, error)
