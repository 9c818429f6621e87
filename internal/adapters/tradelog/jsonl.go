// Package tradelog persiste los TradeEvent como JSON Lines en un archivo append-only.
package tradelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

// DefaultMaxBytes es el tamaño a partir del cual se rota el archivo.
const DefaultMaxBytes int64 = 10 << 20

// Writer implementa ports.EventWriter sobre un archivo JSONL.
// Cuando el archivo supera maxBytes se renombra a <base>_<unix>.jsonl
// y se abre uno nuevo con el nombre original.
type Writer struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	f        *os.File
	size     int64
	closed   bool
	now      func() time.Time
}

// Open abre (o crea) el trade log en path. maxBytes <= 0 usa DefaultMaxBytes.
func Open(path string, maxBytes int64) (*Writer, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tradelog.Open: mkdir: %w", err)
		}
	}
	w := &Writer{path: path, maxBytes: maxBytes, now: time.Now}
	if err := w.open(); err != nil {
		return nil, fmt.Errorf("tradelog.Open: %w", err)
	}
	return w, nil
}

func (w *Writer) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.f = f
	w.size = info.Size()
	return nil
}

// Write agrega ev como una línea. La rotación ocurre antes de escribir,
// así que una línea nunca queda partida entre dos archivos.
func (w *Writer) Write(_ context.Context, ev domain.TradeEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("tradelog.Write: marshal: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("tradelog.Write: closed")
	}
	if w.f == nil {
		if err := w.open(); err != nil {
			return fmt.Errorf("tradelog.Write: reopen: %w", err)
		}
	}
	if w.size > 0 && w.size+int64(len(line)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			if w.f == nil {
				return fmt.Errorf("tradelog.Write: rotate: %w", err)
			}
			slog.Warn("tradelog: rotation failed, appending to current file", "path", w.path, "err", err)
		}
	}
	n, err := w.f.Write(line)
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("tradelog.Write: %w", err)
	}
	return nil
}

// rotate cierra el archivo actual, lo renombra con sufijo de timestamp y abre uno nuevo.
// Aunque el rename falle se reabre w.path: el writer sigue vivo y el error se
// devuelve igual. w.f solo queda nil si el open también falla.
func (w *Writer) rotate() error {
	closeErr := w.f.Close()
	w.f = nil

	renameErr := os.Rename(w.path, w.rotatedName(w.now()))
	if err := w.open(); err != nil {
		return errors.Join(closeErr, renameErr, err)
	}
	return errors.Join(closeErr, renameErr)
}

func (w *Writer) rotatedName(at time.Time) string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	if ext == "" {
		ext = ".jsonl"
	}
	name := base + "_" + strconv.FormatInt(at.Unix(), 10) + ext
	// dos rotaciones en el mismo segundo
	for i := 1; fileExists(name); i++ {
		name = base + "_" + strconv.FormatInt(at.Unix(), 10) + "_" + strconv.Itoa(i) + ext
	}
	return name
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Close cierra el archivo. Llamadas posteriores a Write fallan.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
