// Package config defines the configuration snapshot handled by the adapter. A
// configuration is a JSON object fetched from a repository (or a local file)
// and is compared against the previous snapshot by its canonical encoding so
// that key order and whitespace in the source file never count as a change.
package config

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"
)

// Config represents one configuration snapshot: a JSON object decoded into
// generic values (maps, slices, strings, float64, bool and nil).
type Config map[string]interface{}

// Parse decodes raw bytes into a Config. Anything other than a JSON object is
// rejected.
func Parse(raw []byte) (c Config, err error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("configuration is empty")
	}
	if err = json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if c == nil {
		return nil, errors.New("configuration is not a JSON object")
	}
	return
}

// Canonical returns the canonical serialisation of the configuration. Object
// keys are sorted at every level and a nil Config encodes as an empty object.
func (c Config) Canonical() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode configuration")
	}
	return b, nil
}

// Equal reports whether two configurations have the same canonical encoding.
// Configurations that cannot be encoded are never equal.
func Equal(a, b Config) bool {
	ca, err := a.Canonical()
	if err != nil {
		return false
	}
	cb, err := b.Canonical()
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// Copy returns a deep copy, so the receiver and the result share no maps or
// slices.
func (c Config) Copy() Config {
	if c == nil {
		return Config{}
	}
	return copystructure.Must(copystructure.Copy(c)).(Config)
}

// Diff returns the top-level keys that were added, removed and changed
// between the old and the new configuration, each sorted.
func Diff(oldConfig, newConfig Config) (added, removed, changed []string) {
	for k, nv := range newConfig {
		ov, exists := oldConfig[k]
		if !exists {
			added = append(added, k)
		} else if !reflect.DeepEqual(ov, nv) {
			changed = append(changed, k)
		}
	}
	for k := range oldConfig {
		if _, exists := newConfig[k]; !exists {
			removed = append(removed, k)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return
}
