package adapter

import (
	"context"

	"github.com/picostack/gitadapter/config"
	"github.com/picostack/gitadapter/metrics"
)

// FetchConfigFile runs one fetch cycle: fetch, reconcile, then arm the next
// cycle. A failed fetch is reported through the notifier and returned, and the
// loop is armed all the same so it recovers on the next cycle. On success the
// fetched configuration is returned as a copy.
func (a *Adapter) FetchConfigFile(ctx context.Context) (config.Config, error) {
	a.cycle.Lock()
	defer a.cycle.Unlock()
	return a.fetch(ctx)
}

// Wake runs a pending deferred fetch immediately instead of waiting for the
// interval to elapse. It reports false when nothing was pending or a cycle is
// already running, including when called from a subscriber.
func (a *Adapter) Wake() bool {
	if !a.cycle.TryLock() {
		return false
	}
	defer a.cycle.Unlock()

	a.mu.Lock()
	t := a.timer
	if t == nil || !t.Stop() {
		a.mu.Unlock()
		return false
	}
	a.timer = nil
	a.mu.Unlock()

	a.fetch(a.ctx) //nolint:errcheck
	return true
}

// fire is the deferred call scheduled by arm.
func (a *Adapter) fire() {
	a.cycle.Lock()
	defer a.cycle.Unlock()

	a.mu.Lock()
	a.timer = nil
	a.mu.Unlock()

	a.fetch(a.ctx) //nolint:errcheck
}

// fetch must be called with the cycle lock held.
func (a *Adapter) fetch(ctx context.Context) (config.Config, error) {
	a.setState(Fetching)

	data, err := a.source.Fetch(ctx)
	metrics.Fetches.WithLabelValues(a.source.Name(), metrics.Result(err)).Inc()
	if err != nil {
		if !a.params.Mute {
			if a.params.Local {
				a.notifier.LocalFetchFailed(err)
			} else {
				a.notifier.FetchFailed(a.params.FileName, a.params.Repository, err)
			}
		}
		a.arm()
		return nil, err
	}

	a.reconcile(data)
	a.arm()
	return data.Copy(), nil
}
