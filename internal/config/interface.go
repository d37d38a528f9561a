package config

import (
	"context"

	"github.com/vk/exerunner/internal/ctxlog"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths (files or directories)
	// and translates it into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)

	// Extensions lists the file extensions the loader understands,
	// including the leading dot.
	Extensions() []string
}

// Loaders is a composite Loader. Each path is offered to every loader, and
// each loader only picks up files with its own extensions. The partial models
// are merged in loader order.
type Loaders []Loader

// Load implements Loader.
func (ls Loaders) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	model := NewModel()
	for _, l := range ls {
		m, err := l.Load(ctx, paths...)
		if err != nil {
			return nil, err
		}
		if err := Merge(model, m); err != nil {
			return nil, err
		}
		logger.Debug("Merged partial configuration.", "extensions", l.Extensions(), "installations", len(m.Installations), "steps", len(m.Steps))
	}
	return model, nil
}

// Extensions implements Loader.
func (ls Loaders) Extensions() []string {
	var exts []string
	for _, l := range ls {
		exts = append(exts, l.Extensions()...)
	}
	return exts
}
