// Package secret provides an interface and implementations for secret storage.
// The CLI uses a secret store to resolve the repository access token when it
// is not passed directly, so the token never has to live in the environment.
package secret

import "github.com/pkg/errors"

// Store describes a type that can securely obtain a named set of secrets.
type Store interface {
	GetSecrets(name string) (map[string]string, error)
}

// Lookup reads a single key from the named secret set.
func Lookup(s Store, name, key string) (string, error) {
	secrets, err := s.GetSecrets(name)
	if err != nil {
		return "", err
	}
	value, ok := secrets[key]
	if !ok || value == "" {
		return "", errors.Errorf("secret %s has no value for key %s", name, key)
	}
	return value, nil
}
