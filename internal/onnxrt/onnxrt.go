// Package onnxrt owns the process-wide onnxruntime environment shared by the
// detectors and ONNX classifiers.
package onnxrt

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	mu      sync.Mutex
	started bool
)

// Init loads the onnxruntime shared library and initializes the environment.
// Calling it again after a successful call is a no-op.
func Init(libPath string) error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	started = true
	return nil
}

// Shutdown destroys the environment. Sessions must be destroyed first.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if !started {
		return nil
	}
	started = false
	return ort.DestroyEnvironment()
}

// Ready reports whether Init succeeded.
func Ready() bool {
	mu.Lock()
	defer mu.Unlock()
	return started
}
