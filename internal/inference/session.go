package inference

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	initialized bool
	initMu      sync.Mutex
	log         logrus.FieldLogger = logrus.StandardLogger()
)

// DefaultLibraryPath returns the usual ONNX Runtime shared library location
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "lib/libonnxruntime.so"
	}
}

// Initialize sets up ONNX Runtime environment (call once at startup)
func Initialize(libraryPath string, logger logrus.FieldLogger) error {
	initMu.Lock()
	defer initMu.Unlock()

	if logger != nil {
		log = logger
	}
	if initialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", libraryPath, err)
	}

	initialized = true
	log.WithField("library", libraryPath).Debug("onnx runtime initialized")
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session   *ort.DynamicAdvancedSession
	modelPath string
}

// NewSession creates a new inference session, preferring the CoreML
// execution provider where it is available
func NewSession(modelPath string, inputNames, outputNames []string) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	provider := "coreml"
	if err := options.AppendExecutionProviderCoreML(0); err != nil {
		provider = "cpu"
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	log.WithFields(logrus.Fields{"model": modelPath, "provider": provider}).Info("model loaded")

	return &Session{session: session, modelPath: modelPath}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	return ort.NewTensor(ort.NewShape(shape...), make([]T, size))
}

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// ModelInfo lists the inputs and outputs declared by a model file
func ModelInfo(modelPath string) (inputs, outputs []TensorInfo, err error) {
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model info: %w", err)
	}
	convert := func(infos []ort.InputOutputInfo) []TensorInfo {
		result := make([]TensorInfo, 0, len(infos))
		for _, info := range infos {
			result = append(result, TensorInfo{
				Name:       info.Name,
				Dimensions: info.Dimensions,
				DataType:   fmt.Sprint(info.DataType),
			})
		}
		return result
	}
	return convert(in), convert(out), nil
}
