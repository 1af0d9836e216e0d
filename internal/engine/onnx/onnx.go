// Package onnx runs classification models with onnxruntime.
package onnx

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/rvm-classifier/internal/engine"
	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

// Name is the backend name used in configuration.
const Name = "onnx"

func init() {
	engine.Register(Name, func(cfg engine.Config) model.Opener {
		return func(modelPath string, opts model.EngineOptions) (model.Engine, error) {
			return Open(modelPath, cfg, opts)
		}
	})
}

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(library string) error {
	envOnce.Do(func() {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// Shutdown tears down the onnxruntime environment. Call it once, after every
// Engine has been closed.
func Shutdown() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// Engine is a model.Engine backed by an onnxruntime session with
// preallocated input and output tensors.
type Engine struct {
	session *ort.AdvancedSession
	input   model.TensorInfo
	output  model.TensorInfo

	inputTensor  ort.Value
	outputTensor ort.Value
}

// Open loads modelPath and binds its first input and output.
func Open(modelPath string, cfg engine.Config, opts model.EngineOptions) (*Engine, error) {
	if err := initEnvironment(cfg.ORTLibrary); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %w", model.ErrModelLoad, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model info: %w", model.ErrModelLoad, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: model has no inputs or outputs", model.ErrModelLoad)
	}

	input, err := tensorInfo(inputs[0])
	if err != nil {
		return nil, err
	}
	output, err := tensorInfo(outputs[0])
	if err != nil {
		return nil, err
	}
	if output.Quantized() {
		if cfg.OutputQuantization == nil {
			return nil, fmt.Errorf("%w: output %q is %s but no output quantization was configured", model.ErrModelLoad, output.Name, output.Type)
		}
		output.Quantization = *cfg.OutputQuantization
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session options: %w", model.ErrModelLoad, err)
	}
	defer options.Destroy()

	if opts.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("%w: failed to set thread count: %w", model.ErrModelLoad, err)
		}
	}
	if opts.EnableAccelerator {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("%w: CUDA provider: %w", model.ErrUnsupportedPlatform, err)
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("%w: CUDA provider: %w", model.ErrUnsupportedPlatform, err)
		}
	}

	inputTensor, err := newTensor(input)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %w", model.ErrModelLoad, err)
	}
	outputTensor, err := newTensor(output)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create output tensor: %w", model.ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{input.Name}, []string{output.Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", model.ErrModelLoad, err)
	}

	logrus.WithFields(logrus.Fields{
		"backend":     Name,
		"input":       input.Name,
		"output":      output.Name,
		"threads":     opts.NumThreads,
		"accelerator": opts.EnableAccelerator,
	}).Debug("onnx session created")

	return &Engine{
		session:      session,
		input:        input,
		output:       output,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (e *Engine) InputInfo() model.TensorInfo  { return e.input }
func (e *Engine) OutputInfo() model.TensorInfo { return e.output }

func (e *Engine) SetInput(t model.Tensor) error {
	var err error
	switch in := e.inputTensor.(type) {
	case *ort.Tensor[float32]:
		err = engine.CopyFloat32(in.GetData(), t.Values)
	case *ort.Tensor[uint8]:
		err = engine.CopyUint8(in.GetData(), t.Values)
	case *ort.Tensor[int8]:
		err = engine.CopyInt8(in.GetData(), t.Values)
	default:
		err = fmt.Errorf("unsupported input tensor %T", in)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	return nil
}

func (e *Engine) Invoke() error {
	if err := e.session.Run(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInference, err)
	}
	return nil
}

func (e *Engine) Output() (model.Tensor, error) {
	var values []float32
	switch out := e.outputTensor.(type) {
	case *ort.Tensor[float32]:
		values = append([]float32(nil), out.GetData()...)
	case *ort.Tensor[uint8]:
		values = engine.Float32s(out.GetData())
	case *ort.Tensor[int8]:
		values = engine.Float32s(out.GetData())
	default:
		return model.Tensor{}, fmt.Errorf("%w: unsupported output tensor %T", model.ErrInference, out)
	}
	shape := e.output.Shape
	if len(shape) > 1 {
		shape = shape[1:]
	}
	return model.Tensor{
		Shape:  shape,
		Type:   e.output.Type,
		Values: values,
	}, nil
}

func (e *Engine) Close() error {
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func tensorInfo(info ort.InputOutputInfo) (model.TensorInfo, error) {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return model.TensorInfo{}, fmt.Errorf("%w: %q is not a tensor", model.ErrModelLoad, info.Name)
	}
	dtype, err := dataType(info.DataType)
	if err != nil {
		return model.TensorInfo{}, fmt.Errorf("%w: %q: %w", model.ErrModelLoad, info.Name, err)
	}
	shape := make([]int, len(info.Dimensions))
	for i, d := range info.Dimensions {
		shape[i] = int(d)
	}
	return model.TensorInfo{
		Name:  info.Name,
		Shape: engine.Batched(shape, len(shape)),
		Type:  dtype,
	}, nil
}

func dataType(t ort.TensorElementDataType) (model.DataType, error) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return model.Float32, nil
	case ort.TensorElementDataTypeUint8:
		return model.UInt8, nil
	case ort.TensorElementDataTypeInt8:
		return model.Int8, nil
	}
	return 0, fmt.Errorf("unsupported element type %v", t)
}

func newTensor(info model.TensorInfo) (ort.Value, error) {
	shape := make([]int64, len(info.Shape))
	for i, d := range info.Shape {
		shape[i] = int64(d)
	}
	s := ort.NewShape(shape...)
	switch info.Type {
	case model.UInt8:
		t, err := ort.NewEmptyTensor[uint8](s)
		if err != nil {
			return nil, err
		}
		return t, nil
	case model.Int8:
		t, err := ort.NewEmptyTensor[int8](s)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	t, err := ort.NewEmptyTensor[float32](s)
	if err != nil {
		return nil, err
	}
	return t, nil
}
