package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the task templates known to a host, keyed by task name.
// It is constructed explicitly and passed to the Service; there is no
// package-level registry.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*TaskTemplate
}

// NewRegistry creates a registry pre-populated with templates.
func NewRegistry(templates ...*TaskTemplate) (*Registry, error) {
	r := &Registry{templates: make(map[string]*TaskTemplate)}
	for _, t := range templates {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a template. The template is compiled once to reject
// invalid patterns and time bounds up front.
func (r *Registry) Register(t *TaskTemplate) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("invalid template: missing task name")
	}
	if _, err := compileRowChecks(t); err != nil {
		return fmt.Errorf("invalid template %s: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.Name]; exists {
		return fmt.Errorf("task already registered: %s", t.Name)
	}
	r.templates[t.Name] = t
	return nil
}

// Replace adds or overwrites a template.
func (r *Registry) Replace(t *TaskTemplate) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("invalid template: missing task name")
	}
	if _, err := compileRowChecks(t); err != nil {
		return fmt.Errorf("invalid template %s: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
	return nil
}

// Get returns a template by task name.
func (r *Registry) Get(name string) (*TaskTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	return t, ok
}

// All returns all templates sorted by group then name.
func (r *Registry) All() []*TaskTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*TaskTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// Groups returns all unique group names, sorted.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, t := range r.templates {
		seen[t.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
