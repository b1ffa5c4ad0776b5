package manager

import (
	"os"

	"omnid/pkg/types"
)

// getModelByID finds a model in the registry. Callers hold m.mu.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// estimateMemMB estimates resident memory from the weights file size.
func (m *Manager) estimateMemMB(mdl types.Model) int {
	size := mdl.SizeBytes
	if size <= 0 {
		fi, err := os.Stat(mdl.Path)
		if err != nil {
			// If we cannot stat the file, return a conservative minimum of 1MB
			// to avoid bypassing budget checks due to an unknown size.
			return 1
		}
		size = fi.Size()
	}
	mb := int(size / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}
