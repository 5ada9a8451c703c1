package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a template file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension. The second
// result is false for extensions that are not template files.
func FormatFromPath(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// Load parses a template from r. Unknown keys are rejected in every format.
func Load(r io.Reader, format Format) (*TemplateFile, error) {
	var tf TemplateFile

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&tf); err != nil {
			return nil, fmt.Errorf("decode template: %w", err)
		}
	case FormatTOML:
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&tf); err != nil {
			return nil, fmt.Errorf("decode template: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&tf); err != nil {
			return nil, fmt.Errorf("decode template: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}

	return &tf, nil
}

// LoadFile reads and parses a template file. The format follows the
// file extension.
func LoadFile(name string) (*TemplateFile, error) {
	format, ok := FormatFromPath(name)
	if !ok {
		return nil, fmt.Errorf("unsupported template file %s", name)
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer f.Close()

	return Load(f, format)
}

// Source is a validated template together with the file it came from.
type Source struct {
	Path     string
	Template *TemplateFile
}

// LoadFS loads every template file in the root of fsys, validates each and
// returns them sorted by path. Files with other extensions are ignored.
// The first invalid file aborts loading.
func LoadFS(fsys fs.FS) ([]Source, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	var out []Source
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := FormatFromPath(entry.Name())
		if !ok {
			continue
		}

		tf, err := loadFromFS(fsys, entry.Name(), format)
		if err != nil {
			return nil, err
		}
		if errs := Validate(tf); len(errs) > 0 {
			return nil, &InvalidError{Source: entry.Name(), Errors: errs}
		}
		out = append(out, Source{Path: entry.Name(), Template: tf})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// LoadDir is LoadFS over a directory on disk.
func LoadDir(dir string) ([]Source, error) {
	return LoadFS(os.DirFS(dir))
}

func loadFromFS(fsys fs.FS, name string, format Format) (*TemplateFile, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", name, err)
	}
	defer f.Close()

	tf, err := Load(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path.Base(name), err)
	}
	return tf, nil
}
