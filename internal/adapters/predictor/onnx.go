// Package predictor carga el artefacto de probability nudge como un modelo ONNX.
package predictor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// ErrClosed lo devuelve Predict después de Close.
var ErrClosed = errors.New("predictor closed")

// Options configura el runtime y los nombres de los tensores del grafo.
type Options struct {
	LibraryPath string // vacío usa la ruta por defecto del sistema
	InputName   string
	OutputName  string
}

func (o Options) withDefaults() Options {
	if o.LibraryPath == "" {
		o.LibraryPath = defaultLibraryPath()
	}
	if o.InputName == "" {
		o.InputName = "input"
	}
	if o.OutputName == "" {
		o.OutputName = "probabilities"
	}
	return o
}

func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	}
	return "/usr/lib/libonnxruntime.so"
}

var (
	initOnce sync.Once
	initErr  error
)

// initRuntime inicializa el entorno de ONNX Runtime una sola vez por proceso.
func initRuntime(libPath string) error {
	initOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// ONNX implementa ports.Predictor sobre un clasificador binario exportado a ONNX.
// Entrada [1, FeatureCount] float32; salida [1, 2] con P(down), P(up).
type ONNX struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

// Open carga el modelo en path.
func Open(path string, opts Options) (*ONNX, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("predictor.Open: %w", err)
	}
	opts = opts.withDefaults()
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("predictor.Open: init runtime: %w", err)
	}

	input, err := ort.NewTensor(ort.NewShape(1, domain.FeatureCount), make([]float32, domain.FeatureCount))
	if err != nil {
		return nil, fmt.Errorf("predictor.Open: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 2))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("predictor.Open: output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(path,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("predictor.Open: session %q: %w", path, err)
	}
	return &ONNX{session: session, input: input, output: output}, nil
}

// Predict devuelve la probabilidad de UP para el snapshot.
// Los tensores son compartidos, así que las llamadas se serializan.
func (m *ONNX) Predict(f domain.FeatureSnapshot) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	copy(m.input.GetData(), f.Vector())
	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("predictor.Predict: run: %w", err)
	}
	return upProbability(m.output.GetData())
}

// upProbability toma la columna de la clase UP y la valida.
func upProbability(out []float32) (float64, error) {
	if len(out) < 2 {
		return 0, fmt.Errorf("predictor: output has %d values, want 2", len(out))
	}
	p := float64(out[1])
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("predictor: probability out of range: %v", p)
	}
	return p, nil
}

// Close libera la sesión y los tensores. Es idempotente.
func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
	}
	return errors.Join(errs...)
}

// Loader devuelve un ports.PredictorLoader que abre modelos con opts.
func Loader(opts Options) ports.PredictorLoader {
	return func(path string) (ports.Predictor, error) {
		m, err := Open(path, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
