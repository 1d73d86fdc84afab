package adapter

import (
	"sort"

	"go.uber.org/zap"

	"github.com/picostack/gitadapter/config"
	"github.com/picostack/gitadapter/metrics"
	"github.com/picostack/gitadapter/source"
)

// reconcile compares a fetched configuration with the snapshot. A change
// replaces the snapshot and is delivered to every subscriber, an identical
// configuration is dropped silently.
func (a *Adapter) reconcile(data config.Config) {
	a.mu.Lock()
	a.state = Reconciling
	previous := a.snapshot
	if config.Equal(previous, data) {
		a.mu.Unlock()
		return
	}
	a.snapshot = data.Copy()
	subscribers := a.subscriberList()
	a.mu.Unlock()

	added, removed, changed := config.Diff(previous, data)
	a.log.Debug("configuration changed",
		zap.String("source", a.source.Name()),
		zap.Strings("added", added),
		zap.Strings("removed", removed),
		zap.Strings("changed", changed),
		zap.Int("subscribers", len(subscribers)))

	if !a.params.Mute {
		a.notifier.ConfigReceived(a.label())
	}
	if a.params.Verbose && a.params.Development {
		a.log.Info("received configuration", zap.Any("config", data))
	}
	metrics.Updates.WithLabelValues(a.source.Name()).Inc()

	for _, fn := range subscribers {
		fn(data.Copy())
	}
}

// arm schedules the next fetch if an interval is configured, polling is
// enabled and the loop context is still live. At most one fetch is pending.
func (a *Adapter) arm() {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.timer != nil:
		a.state = Armed
	case !a.poll:
		a.state = Disabled
	case a.params.PollInterval <= 0 || a.ctx.Err() != nil:
		a.state = Idle
	default:
		a.timer = a.clock.AfterFunc(a.params.PollInterval, a.fire)
		a.state = Armed
	}
}

// TogglePollLoop sets the poll-enabled flag. Disabling does not cancel a fetch
// that is already pending, it only stops the loop from being armed again.
func (a *Adapter) TogglePollLoop(enabled bool) {
	a.mu.Lock()
	a.poll = enabled
	if a.state == Idle || a.state == Disabled {
		if enabled {
			a.state = Idle
		} else {
			a.state = Disabled
		}
	}
	a.mu.Unlock()

	if !a.params.Mute {
		a.notifier.PollToggled(enabled)
	}
}

func (a *Adapter) label() string {
	if a.params.Local {
		return source.LocalFileName
	}
	return a.params.Username
}

// subscriberList must be called with mu held.
func (a *Adapter) subscriberList() []func(config.Config) {
	ids := make([]int, 0, len(a.subscribers))
	for id := range a.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	list := make([]func(config.Config), len(ids))
	for i, id := range ids {
		list[i] = a.subscribers[id]
	}
	return list
}
