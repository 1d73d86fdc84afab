package source

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/picostack/gitadapter/config"
)

var _ Source = &Local{}

// Local implements a Source that reads local.json from a directory.
type Local struct {
	// Directory holds local.json. Empty means the process working directory,
	// resolved on every fetch.
	Directory string
}

// Path returns the full path of the local configuration file.
func (l *Local) Path() (string, error) {
	dir := l.Directory
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "failed to get working directory")
		}
		dir = wd
	}
	return filepath.Join(dir, LocalFileName), nil
}

// Fetch implements Source
func (l *Local) Fetch(ctx context.Context) (config.Config, error) {
	path, err := l.Path()
	if err != nil {
		return nil, err
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read local configuration")
	}
	return config.Parse(raw)
}

// Name implements Source
func (l *Local) Name() string {
	return LocalFileName
}
