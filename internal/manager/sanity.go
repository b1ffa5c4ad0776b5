package manager

import "os"

// Checker is implemented by loaders that depend on external binaries.
type Checker interface {
	Check() error
}

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	RuntimeOK     bool   `json:"runtime_ok"`
	ModelsPresent int    `json:"models_present"`
	ModelsMissing int    `json:"models_missing"`
	DefaultModel  string `json:"default_model,omitempty"`
	DefaultFound  bool   `json:"default_found"`
	Error         string `json:"error,omitempty"`
}

// SanityCheck validates that the runtime and registered weights are
// available. It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{RuntimeOK: true, DefaultModel: m.defaultModel}
	if c, ok := m.loader.(Checker); ok {
		if err := c.Check(); err != nil {
			r.RuntimeOK = false
			r.Error = err.Error()
		}
	}
	for _, mdl := range m.ListModels() {
		if fi, err := os.Stat(mdl.Path); err == nil && !fi.IsDir() {
			r.ModelsPresent++
		} else {
			r.ModelsMissing++
		}
		if mdl.ID == m.defaultModel {
			r.DefaultFound = true
		}
	}
	if m.defaultModel != "" && !r.DefaultFound && r.Error == "" {
		r.Error = "default model not in registry: " + m.defaultModel
	}
	return r
}
