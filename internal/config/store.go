package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/signalctl/internal/iso"
	"github.com/rs/zerolog/log"
)

// Persistence stores the configuration and specification documents.
//
//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks -source=store.go
type Persistence interface {
	LoadConfig() (Config, error)
	SaveConfig(cfg Config) error
	LoadSpec() (iso.Spec, error)
	SaveSpec(spec iso.Spec) error
}

// FileStore keeps the config as TOML and the spec as JSON on local disk.
type FileStore struct {
	mu         sync.Mutex
	configPath string
	specPath   string
}

var _ Persistence = (*FileStore)(nil)

func NewFileStore(configPath, specPath string) *FileStore {
	return &FileStore{
		configPath: strings.TrimSpace(configPath),
		specPath:   strings.TrimSpace(specPath),
	}
}

func (s *FileStore) LoadConfig() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Load(s.configPath)
}

// SaveConfig validates and writes cfg. The API token is kept from the file
// when cfg carries none, since the API never returns it.
func (s *FileStore) SaveConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.API.Token == "" {
		if prev, err := Load(s.configPath); err == nil {
			cfg.API.Token = prev.API.Token
		}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config encode failed: %w", err)
	}
	if err := writeFileAtomic(s.configPath, buf.Bytes()); err != nil {
		return fmt.Errorf("config save failed (%s): %w", s.configPath, err)
	}
	if strings.TrimSpace(cfg.Specification.Path) != "" {
		s.specPath = strings.TrimSpace(cfg.Specification.Path)
	}
	return nil
}

// LoadSpec reads the spec document, falling back to iso.DefaultSpec when the file is absent.
func (s *FileStore) LoadSpec() (iso.Spec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.specPath == "" {
		return iso.DefaultSpec(), nil
	}
	data, err := os.ReadFile(s.specPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", s.specPath).Msg("config.FileStore.LoadSpec file missing, using default spec")
			return iso.DefaultSpec(), nil
		}
		return iso.Spec{}, fmt.Errorf("spec load failed (%s): %w", s.specPath, err)
	}
	var spec iso.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return iso.Spec{}, fmt.Errorf("spec parse failed (%s): %w", s.specPath, err)
	}
	if err := spec.Validate(); err != nil {
		return iso.Spec{}, err
	}
	return spec, nil
}

// SaveSpec backs up the current spec file to <path>.bak before replacing it.
func (s *FileStore) SaveSpec(spec iso.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.specPath == "" {
		return fmt.Errorf("%w: specification.path is empty", ErrInvalidConfig)
	}
	if prev, err := os.ReadFile(s.specPath); err == nil {
		if err := os.WriteFile(s.specPath+".bak", prev, 0o600); err != nil {
			return fmt.Errorf("spec backup failed (%s): %w", s.specPath, err)
		}
	}
	data, err := json.MarshalIndent(spec, "", "    ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.specPath, data); err != nil {
		return fmt.Errorf("spec save failed (%s): %w", s.specPath, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
