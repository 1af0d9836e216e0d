// Package tflite runs classification models with the TensorFlow Lite
// interpreter. The accelerator path uses the first available EdgeTPU.
package tflite

import (
	"fmt"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/rvm-classifier/internal/engine"
	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

// Name is the backend name used in configuration.
const Name = "tflite"

func init() {
	engine.Register(Name, func(cfg engine.Config) model.Opener {
		return func(modelPath string, opts model.EngineOptions) (model.Engine, error) {
			return Open(modelPath, cfg, opts)
		}
	})
}

// Engine is a model.Engine backed by a TFLite interpreter.
type Engine struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    delegates.Delegater
	interpreter *tflite.Interpreter

	input  model.TensorInfo
	output model.TensorInfo
}

// Open loads modelPath and allocates the interpreter's tensors.
func Open(modelPath string, cfg engine.Config, opts model.EngineOptions) (*Engine, error) {
	log := logrus.WithFields(logrus.Fields{"backend": Name, "model": modelPath})

	m := tflite.NewModelFromFile(modelPath)
	if m == nil {
		return nil, fmt.Errorf("%w: cannot load %s", model.ErrModelLoad, modelPath)
	}
	e := &Engine{model: m}

	e.options = tflite.NewInterpreterOptions()
	if opts.NumThreads > 0 {
		e.options.SetNumThread(opts.NumThreads)
	}
	e.options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Warn(msg)
	}, nil)

	if opts.EnableAccelerator {
		devices, err := edgetpu.DeviceList()
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("%w: list EdgeTPU devices: %w", model.ErrUnsupportedPlatform, err)
		}
		if len(devices) == 0 {
			e.Close()
			return nil, fmt.Errorf("%w: no EdgeTPU device found", model.ErrUnsupportedPlatform)
		}
		e.delegate = edgetpu.New(devices[0])
		if e.delegate == nil {
			e.Close()
			return nil, fmt.Errorf("%w: cannot create EdgeTPU delegate", model.ErrUnsupportedPlatform)
		}
		e.options.AddDelegate(e.delegate)
	}

	e.interpreter = tflite.NewInterpreter(m, e.options)
	if e.interpreter == nil {
		e.Close()
		return nil, fmt.Errorf("%w: cannot create interpreter for %s", model.ErrModelLoad, modelPath)
	}
	if status := e.interpreter.AllocateTensors(); status != tflite.OK {
		e.Close()
		return nil, fmt.Errorf("%w: allocate tensors: status %v", model.ErrModelLoad, status)
	}
	if e.interpreter.GetInputTensorCount() == 0 || e.interpreter.GetOutputTensorCount() == 0 {
		e.Close()
		return nil, fmt.Errorf("%w: model has no inputs or outputs", model.ErrModelLoad)
	}

	var err error
	if e.input, err = tensorInfo(e.interpreter.GetInputTensor(0)); err != nil {
		e.Close()
		return nil, err
	}
	if e.output, err = tensorInfo(e.interpreter.GetOutputTensor(0)); err != nil {
		e.Close()
		return nil, err
	}
	if cfg.OutputQuantization != nil && e.output.Quantized() {
		e.output.Quantization = *cfg.OutputQuantization
	}

	log.WithFields(logrus.Fields{
		"threads":     opts.NumThreads,
		"accelerator": opts.EnableAccelerator,
	}).Debug("tflite interpreter ready")

	return e, nil
}

func (e *Engine) InputInfo() model.TensorInfo  { return e.input }
func (e *Engine) OutputInfo() model.TensorInfo { return e.output }

func (e *Engine) SetInput(t model.Tensor) error {
	in := e.interpreter.GetInputTensor(0)
	var err error
	switch in.Type() {
	case tflite.Float32:
		err = engine.CopyFloat32(in.Float32s(), t.Values)
	case tflite.UInt8:
		err = engine.CopyUint8(in.UInt8s(), t.Values)
	case tflite.Int8:
		err = engine.CopyInt8(in.Int8s(), t.Values)
	default:
		err = fmt.Errorf("unsupported input type %v", in.Type())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	return nil
}

func (e *Engine) Invoke() error {
	if status := e.interpreter.Invoke(); status != tflite.OK {
		return fmt.Errorf("%w: invoke: status %v", model.ErrInference, status)
	}
	return nil
}

func (e *Engine) Output() (model.Tensor, error) {
	out := e.interpreter.GetOutputTensor(0)
	var values []float32
	switch out.Type() {
	case tflite.Float32:
		values = append([]float32(nil), out.Float32s()...)
	case tflite.UInt8:
		values = engine.Float32s(out.UInt8s())
	case tflite.Int8:
		values = engine.Float32s(out.Int8s())
	default:
		return model.Tensor{}, fmt.Errorf("%w: unsupported output type %v", model.ErrInference, out.Type())
	}
	shape := e.output.Shape
	if len(shape) > 1 {
		shape = shape[1:]
	}
	return model.Tensor{Shape: shape, Type: e.output.Type, Values: values}, nil
}

func (e *Engine) Close() error {
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.delegate != nil {
		e.delegate.Delete()
		e.delegate = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	return nil
}

func tensorInfo(t *tflite.Tensor) (model.TensorInfo, error) {
	if t == nil {
		return model.TensorInfo{}, fmt.Errorf("%w: missing tensor", model.ErrModelLoad)
	}
	var dtype model.DataType
	switch t.Type() {
	case tflite.Float32:
		dtype = model.Float32
	case tflite.UInt8:
		dtype = model.UInt8
	case tflite.Int8:
		dtype = model.Int8
	default:
		return model.TensorInfo{}, fmt.Errorf("%w: tensor %q has unsupported type %v", model.ErrModelLoad, t.Name(), t.Type())
	}

	shape := make([]int, t.NumDims())
	for i := range shape {
		shape[i] = t.Dim(i)
	}
	q := t.QuantizationParams()
	return model.TensorInfo{
		Name:  t.Name(),
		Shape: engine.Batched(shape, len(shape)),
		Type:  dtype,
		Quantization: model.Quantization{
			Scale:     float64(q.Scale),
			ZeroPoint: int(q.ZeroPoint),
		},
	}, nil
}
