// Package retrain implementa el canal unidireccional hacia el pipeline de
// entrenamiento. El engine deja pedidos y lee el puntero al último artefacto;
// nunca ejecuta código de entrenamiento.
package retrain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Request es el mensaje de pedido de reentrenamiento.
type Request struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// Artifact es el puntero publicado por el pipeline tras entrenar.
type Artifact struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// FileChannel usa un directorio spool compartido con el pipeline:
//
//	<dir>/requests/<unix_nano>.json   pedidos del engine
//	<dir>/latest.json                 último artefacto publicado
type FileChannel struct {
	dir string
	now func() time.Time
}

// NewFileChannel crea el spool en dir si no existe.
func NewFileChannel(dir string) (*FileChannel, error) {
	if err := os.MkdirAll(filepath.Join(dir, "requests"), 0o755); err != nil {
		return nil, fmt.Errorf("retrain.NewFileChannel: %w", err)
	}
	return &FileChannel{dir: dir, now: time.Now}, nil
}

// RequestRetrain escribe un pedido. Se escribe a un temporal y se renombra
// para que el pipeline nunca lea un archivo a medias.
func (c *FileChannel) RequestRetrain(_ context.Context, reason string) error {
	at := c.now().UTC()
	data, err := json.Marshal(Request{Reason: reason, RequestedAt: at})
	if err != nil {
		return fmt.Errorf("retrain.RequestRetrain: %w", err)
	}
	name := filepath.Join(c.dir, "requests", strconv.FormatInt(at.UnixNano(), 10)+".json")
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("retrain.RequestRetrain: write: %w", err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("retrain.RequestRetrain: rename: %w", err)
	}
	return nil
}

// LatestArtifact lee latest.json. Sin versión explícita se usa el mtime del
// modelo. Una ruta relativa se resuelve contra el spool.
func (c *FileChannel) LatestArtifact(_ context.Context) (string, string, bool, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, "latest.json"))
	if errors.Is(err, os.ErrNotExist) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("retrain.LatestArtifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return "", "", false, fmt.Errorf("retrain.LatestArtifact: decode: %w", err)
	}
	if a.Path == "" {
		return "", "", false, nil
	}
	if !filepath.IsAbs(a.Path) {
		a.Path = filepath.Join(c.dir, a.Path)
	}
	if a.Version == "" {
		info, err := os.Stat(a.Path)
		if err != nil {
			return "", "", false, fmt.Errorf("retrain.LatestArtifact: %w", err)
		}
		a.Version = strconv.FormatInt(info.ModTime().UnixNano(), 10)
	}
	return a.Path, a.Version, true, nil
}
