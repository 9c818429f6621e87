package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/updown/internal/domain"
)

// LoadTunables lee el documento de tunables. Las keys ausentes toman el valor
// por defecto. Un documento vacío equivale a todos los defaults.
func LoadTunables(path string) (domain.Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Tunables{}, domain.NewOpError(domain.ErrConfig, "config.LoadTunables", fmt.Errorf("read %q: %w", path, err))
	}

	t := domain.DefaultTunables()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return domain.Tunables{}, domain.NewOpError(domain.ErrConfig, "config.LoadTunables", fmt.Errorf("parse %q: %w", path, err))
	}
	if err := t.Validate(); err != nil {
		return domain.Tunables{}, domain.NewOpError(domain.ErrConfig, "config.LoadTunables", err)
	}
	return t, nil
}
