package settings

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/generation"
	"github.com/nerrad567/typepilot/internal/session"
)

// ErrInvalidSettings is returned when the settings file cannot be used.
var ErrInvalidSettings = errors.New("settings: invalid settings file")

// Snapshot is the settings in force for one trigger.
type Snapshot struct {
	Generation generation.Settings  `json:"generation"`
	Profile    session.SpeedProfile `json:"profile"`
	Bindings   action.Bindings      `json:"bindings"`
}

// Provider returns the current settings.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// file is the on-disk layout.
type file struct {
	Profile    string              `yaml:"profile"`
	Generation generation.Settings `yaml:"generation"`
	Hotkeys    map[string]string   `yaml:"hotkeys"`
}

// FileProvider reads a YAML settings file.
type FileProvider struct {
	path           string
	defaultProfile session.SpeedProfile
}

// NewFileProvider creates a provider for path. defaultProfile applies when
// the file does not name one.
func NewFileProvider(path string, defaultProfile session.SpeedProfile) *FileProvider {
	return &FileProvider{path: path, defaultProfile: defaultProfile}
}

// Snapshot reads the file. A missing file yields the defaults.
func (p *FileProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	f := file{Generation: generation.DefaultSettings()}
	data, err := os.ReadFile(p.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return p.defaults(), nil
	case err != nil:
		return Snapshot{}, fmt.Errorf("reading settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	snap := Snapshot{
		Generation: f.Generation.Normalize(),
		Profile:    p.defaultProfile,
		Bindings:   action.DefaultBindings(),
	}
	if err := snap.Generation.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if f.Profile != "" {
		if snap.Profile, err = session.ParseProfile(f.Profile); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
	}
	if len(f.Hotkeys) > 0 {
		if snap.Bindings, err = action.ParseBindings(f.Hotkeys); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
	}
	return snap, nil
}

// Bindings returns only the hotkey bindings. It satisfies action.BindingsFunc.
func (p *FileProvider) Bindings(ctx context.Context) (action.Bindings, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Bindings, nil
}

func (p *FileProvider) defaults() Snapshot {
	return Snapshot{
		Generation: generation.DefaultSettings(),
		Profile:    p.defaultProfile,
		Bindings:   action.DefaultBindings(),
	}
}
