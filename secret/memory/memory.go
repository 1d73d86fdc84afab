package memory

import (
	"github.com/picostack/gitadapter/secret"
)

// MemorySecrets implements a simple in-memory secret.Store for testing
type MemorySecrets struct {
	Secrets map[string]map[string]string
}

var _ secret.Store = &MemorySecrets{}

// GetSecrets implements secret.Store
func (v *MemorySecrets) GetSecrets(name string) (map[string]string, error) {
	table, ok := v.Secrets[name]
	if !ok {
		return nil, nil
	}
	return table, nil
}
