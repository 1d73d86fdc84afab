// Package source contains the transports a configuration can be fetched over.
// A Source only acquires and decodes a configuration, it holds no state about
// previous fetches. Deciding whether a configuration changed is the adapter's
// job.
package source

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"

	"github.com/picostack/gitadapter/config"
)

// LocalFileName is the fixed name of the configuration file in local mode.
const LocalFileName = "local.json"

// Source describes a type that can fetch a configuration.
type Source interface {
	Fetch(ctx context.Context) (config.Config, error)
	// Name is a short label used for logs and metrics.
	Name() string
}

// StatusError is returned when a server answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// get performs a request and returns the body of a 2xx response.
func get(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req = req.WithContext(ctx)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to request %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(ioutil.Discard, resp.Body) //nolint:errcheck
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response from %s", url)
	}
	return b, nil
}
