package adapter

import (
	"context"

	"github.com/pkg/errors"

	"github.com/picostack/gitadapter/metrics"
	"github.com/picostack/gitadapter/notify"
)

// EstablishConnection verifies that the credential authenticates as the
// configured username. Failures are reported through the notifier and
// returned, they never affect the poll loop.
func (a *Adapter) EstablishConnection(ctx context.Context) (err error) {
	defer func() {
		metrics.ConnectionChecks.WithLabelValues(metrics.Result(err)).Inc()
	}()

	login, err := a.github.User(ctx)
	if err == nil && login != a.params.Username {
		err = errors.Errorf("token authenticates as %q, not %q", login, a.params.Username)
	}
	if err != nil {
		if !a.params.Mute {
			a.notifier.ConnectionFailed(err)
		}
		return err
	}

	if !a.params.Mute {
		a.notifier.ConnectionEstablished(a.params.Username)
	}
	return nil
}

// PrintConnection reports the connection parameters.
func (a *Adapter) PrintConnection() {
	a.notifier.Connection(notify.Connection{
		Username:     a.params.Username,
		Organization: a.params.Organization,
		Repository:   a.params.Repository,
		FileName:     a.params.FileName,
	})
}
