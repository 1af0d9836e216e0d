package model

// Category is one labeled score produced by postprocessing.
type Category struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Result is the outcome of a single classification call.
//
// TopPrediction is taken from the raw output tensor before any filtering,
// so it may name a label that Categories no longer contains.
type Result struct {
	Categories    []Category `json:"categories"`
	TopPrediction string     `json:"top_prediction"`
}

// PredictionRequest carries an already preprocessed input tensor in
// channel-last (height, width, channels) order.
type PredictionRequest struct {
	Input []float32 `json:"input"`
}

// DataType is the element type of a model tensor.
type DataType int

const (
	Float32 DataType = iota
	UInt8
	Int8
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case UInt8:
		return "uint8"
	case Int8:
		return "int8"
	}
	return "unknown"
}

// Quantization holds the affine parameters that map raw integer values to
// real values: real = Scale * (raw - ZeroPoint).
type Quantization struct {
	Scale     float64 `json:"scale" yaml:"scale"`
	ZeroPoint int     `json:"zero_point" yaml:"zero_point"`
}

// Dequantize applies the affine transform to a single raw value.
func (q Quantization) Dequantize(raw float32) float32 {
	return float32(q.Scale * (float64(raw) - float64(q.ZeroPoint)))
}

// TensorInfo describes a model input or output.
type TensorInfo struct {
	Name         string
	Shape        []int
	Type         DataType
	Quantization Quantization
}

// Quantized reports whether the tensor holds integer values.
func (t TensorInfo) Quantized() bool {
	return t.Type != Float32
}

// Size returns the element count of the tensor, treating non-positive
// dimensions as 1.
func (t TensorInfo) Size() int {
	return shapeSize(t.Shape)
}

// Tensor is a dense tensor. Values of integer tensors are stored as their
// exact float32 representation.
type Tensor struct {
	Shape  []int
	Type   DataType
	Values []float32
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		if d > 0 {
			n *= d
		}
	}
	return n
}
