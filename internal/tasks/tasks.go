// Package tasks holds the built-in task templates.
//
// Each task type is a template file under templates/. Adding a task type
// means adding a file; the engine has no per-task code.
package tasks

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/JonMunkholm/visitaudit/internal/core"
	"github.com/JonMunkholm/visitaudit/internal/schema"
)

//go:embed templates/*.yaml
var builtinFS embed.FS

// FS returns the built-in template files.
func FS() fs.FS {
	sub, err := fs.Sub(builtinFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("tasks: %v", err))
	}
	return sub
}

// Builtin loads and converts the built-in templates.
func Builtin() ([]*core.TaskTemplate, error) {
	sources, err := schema.LoadFS(FS())
	if err != nil {
		return nil, fmt.Errorf("load built-in templates: %w", err)
	}
	return schema.Templates(sources)
}

// NewRegistry builds a registry from the built-in templates, then applies
// the templates found in dir. A template in dir replaces the built-in of
// the same name. An empty dir uses the built-ins only.
func NewRegistry(dir string) (*core.Registry, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, err
	}

	reg, err := core.NewRegistry(builtin...)
	if err != nil {
		return nil, err
	}

	if dir == "" {
		return reg, nil
	}

	sources, err := schema.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load templates from %s: %w", dir, err)
	}
	custom, err := schema.Templates(sources)
	if err != nil {
		return nil, err
	}
	for _, tmpl := range custom {
		if err := reg.Replace(tmpl); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
