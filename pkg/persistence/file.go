package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/locus/pkg/registry"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// FormatFromPath picks the format from the file extension, JSON by default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatJSON
	}
}

// FileStore keeps the whole state in one JSON or YAML document.
type FileStore struct {
	path   string
	format Format
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	format := FormatFromPath(path)
	if format == FormatMarkdown {
		return nil, errors.Errorf("unsupported state file format %s", filepath.Ext(path))
	}
	return &FileStore{path: path, format: format}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (*registry.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", s.path).Msg("state file missing, starting empty")
		return registry.NewState(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not read state file %s", s.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return registry.NewState(), nil
	}

	state := registry.NewState()
	switch s.format {
	case FormatYAML:
		err = yaml.Unmarshal(data, state)
	default:
		err = json.Unmarshal(data, state)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode state file %s", s.path)
	}
	return state, nil
}

func (s *FileStore) Save(_ context.Context, state *registry.State) error {
	data, err := encode(s.format, state)
	if err != nil {
		return errors.Wrap(err, "could not encode state")
	}
	return writeFileAtomic(s.path, data)
}

func (s *FileStore) Close() error {
	return nil
}

func encode(format Format, v interface{}) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(v)
	default:
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// writeFileAtomic writes to a temporary file next to path and renames it into
// place, so readers see either the old or the new document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "could not create directory %s", dir)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "could not create temporary file")
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "could not write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "could not sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "could not close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "could not move state into %s", path)
	}
	return nil
}
