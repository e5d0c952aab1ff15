package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/deepfake-detector/api/internal/domain/analysis"
)

const DefaultInputName = "input.1"

// Config locates the model and the onnxruntime shared library.
type Config struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	// OutputName defaults to the model's first output.
	OutputName string
}

var envOnce struct {
	sync.Mutex
	ready bool
}

func initEnvironment(libraryPath string) error {
	envOnce.Lock()
	defer envOnce.Unlock()
	if envOnce.ready {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnxruntime: %w", err)
	}
	envOnce.ready = true
	return nil
}

// Classifier scores frames with an ONNX model. The session is loaded once
// and reused; Infer calls are serialized.
type Classifier struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	output     *ort.Tensor[float32]
	inputName  string
	outputName string
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Classifier, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	inputName := cfg.InputName
	if inputName == "" {
		inputName = DefaultInputName
	}

	_, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model info: %w", err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no outputs", cfg.ModelPath)
	}
	out := outputs[0]
	if cfg.OutputName != "" {
		found := false
		for _, o := range outputs {
			if o.Name == cfg.OutputName {
				out, found = o, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("model has no output named %q", cfg.OutputName)
		}
	}

	dims := make([]int64, len(out.Dimensions))
	for i, d := range out.Dimensions {
		if d <= 0 {
			d = 1
		}
		dims[i] = d
	}
	outTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(dims...))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{inputName}, []string{out.Name}, nil)
	if err != nil {
		outTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("classifier loaded",
		zap.String("model", cfg.ModelPath),
		zap.String("input", inputName),
		zap.String("output", out.Name),
		zap.Int64s("output_shape", dims),
	)
	return &Classifier{
		session:    session,
		output:     outTensor,
		inputName:  inputName,
		outputName: out.Name,
		logger:     logger,
	}, nil
}

// Infer returns the first element of the model output for t.
func (c *Classifier) Infer(ctx context.Context, t analysis.Tensor) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	input, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
	if err != nil {
		return 0, fmt.Errorf("%w: build input: %v", analysis.ErrInference, err)
	}
	defer input.Destroy()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0, fmt.Errorf("%w: classifier closed", analysis.ErrInference)
	}
	if err := c.session.Run([]ort.Value{input}, []ort.Value{c.output}); err != nil {
		return 0, fmt.Errorf("%w: %v", analysis.ErrInference, err)
	}
	data := c.output.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty output", analysis.ErrInference)
	}
	return float64(data[0]), nil
}

// Close releases the session. The shared runtime environment stays up.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.output.Destroy()
	c.session = nil
	return err
}
