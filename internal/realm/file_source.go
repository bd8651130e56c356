package realm

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"duck-warehouse/internal/domain"
)

// FileSource reads realm definitions from YAML files, one realm per file.
type FileSource struct {
	fsys fs.FS
}

var _ domain.RealmConfigSource = (*FileSource)(nil)

// NewFileSource reads *.yaml and *.yml files at the root of fsys.
func NewFileSource(fsys fs.FS) *FileSource {
	return &FileSource{fsys: fsys}
}

// NewDirSource reads realm definitions from dir.
func NewDirSource(dir string) *FileSource {
	return NewFileSource(os.DirFS(dir))
}

func (s *FileSource) LoadRealm(_ context.Context, name string) (*domain.RealmConfig, error) {
	configs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return nil, domain.ErrNotFound("realm %q not found", name)
}

func (s *FileSource) ListRealms(context.Context) ([]string, error) {
	configs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(configs))
	for _, cfg := range configs {
		names = append(names, cfg.Name)
	}
	return names, nil
}

func (s *FileSource) readAll() ([]*domain.RealmConfig, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read realm directory: %w", err)
	}

	var configs []*domain.RealmConfig
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		cfg, err := ParseConfig(s.fsys, e.Name())
		if err != nil {
			return nil, err
		}
		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(e.Name(), ext)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// ParseConfig decodes one realm definition file.
func ParseConfig(fsys fs.FS, name string) (*domain.RealmConfig, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read realm config %s: %w", name, err)
	}
	var cfg domain.RealmConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse realm config %s: %w", name, err)
	}
	return &cfg, nil
}
