// Package engine selects an inference backend by name. Backends register
// themselves from their package init, so binaries import the backends they
// want to offer:
//
//	import _ "github.com/Brownie44l1/rvm-classifier/internal/engine/onnx"
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

// Config carries backend settings that are not part of model.Options.
type Config struct {
	// Backend is the registered backend name, e.g. "tflite" or "onnx".
	Backend string

	// ORTLibrary is the path to the onnxruntime shared library.
	ORTLibrary string

	// OutputQuantization overrides or supplies the output quantization
	// parameters for backends whose model format does not expose them.
	OutputQuantization *model.Quantization
}

// Factory builds an Opener from backend configuration.
type Factory func(cfg Config) model.Opener

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// Register makes a backend available under name.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		return
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Supported returns the registered backend names, sorted.
func Supported() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Opener returns the Opener for cfg.Backend.
func Opener(cfg Config) (model.Opener, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported backend %q (supported: %v)", cfg.Backend, Supported())
	}
	return f(cfg), nil
}
