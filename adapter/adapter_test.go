package adapter

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/picostack/gitadapter/clock"
	"github.com/picostack/gitadapter/config"
	"github.com/picostack/gitadapter/notify"
)

// recorder implements notify.Notifier and keeps every call.
type recorder struct {
	mu     sync.Mutex
	events []string
}

var _ notify.Notifier = &recorder{}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(event string) (n int) {
	for _, e := range r.all() {
		if e == event {
			n++
		}
	}
	return
}

func (r *recorder) ConnectionEstablished(username string) { r.add("connected:%s", username) }
func (r *recorder) ConnectionFailed(err error)            { r.add("connection_failed") }
func (r *recorder) LocalMode()                            { r.add("local_mode") }
func (r *recorder) FetchFailed(fileName, repository string, err error) {
	r.add("fetch_failed:%s:%s", fileName, repository)
}
func (r *recorder) LocalFetchFailed(err error)        { r.add("local_fetch_failed") }
func (r *recorder) Connection(info notify.Connection) { r.add("connection:%s", info.Repository) }
func (r *recorder) ConfigReceived(from string)        { r.add("received:%s", from) }
func (r *recorder) PollToggled(enabled bool)          { r.add("poll:%t", enabled) }
func (r *recorder) MissingInputs(missing []string, local, fatal bool) error {
	r.add("missing:%v:%t", missing, fatal)
	if fatal {
		return notify.MissingError(missing)
	}
	return nil
}

type result struct {
	data config.Config
	err  error
}

// fakeSource implements source.Source by replaying results, the last result
// repeats forever.
type fakeSource struct {
	mu      sync.Mutex
	results []result
	calls   int
}

func (f *fakeSource) Fetch(ctx context.Context) (config.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	return r.data.Copy(), r.err
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) set(results ...result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = results
}

var complete = Params{
	Username:   "alice",
	Token:      "secret",
	Repository: "infra",
	FileName:   "config.json",
}

func withPoll(p Params, interval time.Duration) Params {
	p.PollInterval = interval
	p.Poll = true
	return p
}

// collect subscribes and returns a function reporting every delivered config.
func collect(a *Adapter) func() []config.Config {
	var mu sync.Mutex
	var got []config.Config
	a.Subscribe(func(c config.Config) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	})
	return func() []config.Config {
		mu.Lock()
		defer mu.Unlock()
		return append([]config.Config(nil), got...)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name       string
		params     Params
		wantErr    bool
		wantEvents []string
	}{
		{"complete", complete, false, nil},
		{"complete_local_dev", Params{Username: "a", Token: "t", Repository: "r", FileName: "f", Local: true, Development: true},
			false, []string{"local_mode"}},
		{"missing_remote", Params{Username: "alice", Repository: "infra"},
			true, []string{"missing:[token fileName]:true"}},
		{"missing_remote_dev", Params{Development: true},
			true, []string{"missing:[username token repository fileName]:true"}},
		{"missing_local_prod", Params{Local: true},
			true, []string{"missing:[username token repository fileName]:true"}},
		{"missing_local_dev", Params{Local: true, Development: true, Token: "t"},
			false, []string{"local_mode", "missing:[username repository fileName]:false"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			a, err := New(tt.params, WithNotifier(rec))
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, notify.ErrMissingArguments))
				assert.Nil(t, a)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, a)
			}
			assert.Equal(t, tt.wantEvents, rec.all())
		})
	}
}

func TestNewFailsEvenWithSilentNotifier(t *testing.T) {
	_, err := New(Params{}, WithNotifier(notify.Nop{}))
	assert.True(t, errors.Is(err, notify.ErrMissingArguments))
}

func TestParamsOwner(t *testing.T) {
	assert.Equal(t, "alice", complete.Owner())
	p := complete
	p.Organization = "acme"
	assert.Equal(t, "acme", p.Owner())
}

func TestSourceSelection(t *testing.T) {
	a, err := New(complete, WithNotifier(notify.Nop{}))
	require.NoError(t, err)
	assert.Equal(t, "github", a.SourceName())

	p := complete
	p.Clone = true
	a, err = New(p, WithNotifier(notify.Nop{}))
	require.NoError(t, err)
	assert.Equal(t, "git", a.SourceName())

	p.Local = true
	a, err = New(p, WithNotifier(notify.Nop{}))
	require.NoError(t, err)
	assert.Equal(t, "local.json", a.SourceName())
}

func TestLocalScenario(t *testing.T) {
	dir, err := ioutil.TempDir("", "adapter")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "local.json"), []byte(`{"a":1}`), 0o644))

	rec := &recorder{}
	a, err := New(Params{Local: true, Development: true},
		WithNotifier(rec), WithClock(clock.NewMock()), WithWorkingDirectory(dir))
	require.NoError(t, err)
	events := collect(a)

	got, err := a.FetchConfigFile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, config.Config{"a": float64(1)}, got)
	assert.Equal(t, []config.Config{{"a": float64(1)}}, events())
	assert.Equal(t, 1, rec.count("received:local.json"))

	_, err = a.FetchConfigFile(context.Background())
	assert.NoError(t, err)
	assert.Len(t, events(), 1, "unchanged file must not emit")
	assert.Equal(t, 1, rec.count("received:local.json"))
}

func TestLocalReadFailureRearms(t *testing.T) {
	dir, err := ioutil.TempDir("", "adapter")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	rec := &recorder{}
	clk := clock.NewMock()
	a, err := New(withPoll(Params{Local: true, Development: true}, time.Second),
		WithNotifier(rec), WithClock(clk), WithWorkingDirectory(dir))
	require.NoError(t, err)
	events := collect(a)

	_, err = a.FetchConfigFile(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, rec.count("local_fetch_failed"))
	assert.Equal(t, Armed, a.State())

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "local.json"), []byte(`{"fixed":true}`), 0o644))
	clk.Add(time.Second)

	assert.Equal(t, []config.Config{{"fixed": true}}, events())
}

func TestFetchIdempotent(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"k": "v"}}}}
	rec := &recorder{}
	a, err := New(complete, WithNotifier(rec), WithSource(src), WithClock(clock.NewMock()))
	require.NoError(t, err)
	events := collect(a)

	_, err = a.FetchConfigFile(context.Background())
	assert.NoError(t, err)
	_, err = a.FetchConfigFile(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, 2, src.Calls())
	assert.Len(t, events(), 1)
	assert.Equal(t, 1, rec.count("received:alice"))
}

func TestEmptyConfigNeverEmits(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{}}}}
	rec := &recorder{}
	a, err := New(complete, WithNotifier(rec), WithSource(src), WithClock(clock.NewMock()))
	require.NoError(t, err)
	events := collect(a)

	got, err := a.FetchConfigFile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, config.Config{}, got)
	assert.Empty(t, events())
	assert.Zero(t, rec.count("received:alice"))
}

func TestCopiesAreIndependent(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"db": map[string]interface{}{"host": "x"}}}}}
	a, err := New(complete, WithNotifier(notify.Nop{}), WithSource(src), WithClock(clock.NewMock()))
	require.NoError(t, err)

	var first, second config.Config
	a.Subscribe(func(c config.Config) {
		first = c
		c["db"].(map[string]interface{})["host"] = "mutated"
	})
	a.Subscribe(func(c config.Config) { second = c })

	got, err := a.FetchConfigFile(context.Background())
	require.NoError(t, err)
	got["extra"] = true

	assert.Equal(t, "mutated", first["db"].(map[string]interface{})["host"])
	assert.Equal(t, "x", second["db"].(map[string]interface{})["host"])
	assert.Equal(t, config.Config{"db": map[string]interface{}{"host": "x"}}, a.Snapshot())
}

func TestUnsubscribe(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}, {data: config.Config{"v": 2.0}}}}
	a, err := New(complete, WithNotifier(notify.Nop{}), WithSource(src), WithClock(clock.NewMock()))
	require.NoError(t, err)

	calls := 0
	unsubscribe := a.Subscribe(func(config.Config) { calls++ })
	a.FetchConfigFile(context.Background()) //nolint:errcheck
	unsubscribe()
	a.FetchConfigFile(context.Background()) //nolint:errcheck

	assert.Equal(t, 1, calls)
	assert.Equal(t, config.Config{"v": 2.0}, a.Snapshot())
}

func TestRemoteFailureRearms(t *testing.T) {
	src := &fakeSource{results: []result{{err: errors.New("network down")}}}
	rec := &recorder{}
	clk := clock.NewMock()
	a, err := New(withPoll(complete, 1000*time.Millisecond), WithNotifier(rec), WithSource(src), WithClock(clk))
	require.NoError(t, err)

	_, err = a.FetchConfigFile(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, rec.count("fetch_failed:config.json:infra"))

	next, ok := clk.NextIn()
	require.True(t, ok)
	assert.Equal(t, time.Second, next)
	assert.Equal(t, Armed, a.State())

	clk.Add(999 * time.Millisecond)
	assert.Equal(t, 1, src.Calls())
	clk.Add(time.Millisecond)
	assert.Equal(t, 2, src.Calls())
	assert.Equal(t, 2, rec.count("fetch_failed:config.json:infra"))
	assert.Equal(t, 1, clk.Pending())
}

func TestPollDetectsChange(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	clk := clock.NewMock()
	a, err := New(withPoll(complete, 500*time.Millisecond), WithNotifier(notify.Nop{}), WithSource(src), WithClock(clk))
	require.NoError(t, err)

	_, err = a.FetchConfigFile(context.Background())
	require.NoError(t, err)

	events := collect(a)
	src.set(result{data: config.Config{"v": 2.0}})

	clk.Add(500 * time.Millisecond)
	clk.Add(5 * time.Second)

	assert.Equal(t, []config.Config{{"v": 2.0}}, events())
	assert.Equal(t, 12, src.Calls())
}

func TestNoIntervalNeverArms(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	clk := clock.NewMock()
	p := complete
	p.Poll = true
	a, err := New(p, WithNotifier(notify.Nop{}), WithSource(src), WithClock(clk))
	require.NoError(t, err)

	a.FetchConfigFile(context.Background()) //nolint:errcheck
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, Idle, a.State())
}

func TestPollDisabledByDefault(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	clk := clock.NewMock()
	p := complete
	p.PollInterval = time.Second
	a, err := New(p, WithNotifier(notify.Nop{}), WithSource(src), WithClock(clk))
	require.NoError(t, err)
	assert.Equal(t, Disabled, a.State())
	assert.False(t, a.PollEnabled())

	a.FetchConfigFile(context.Background()) //nolint:errcheck
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, Disabled, a.State())
}

func TestToggleOffLetsPendingFetchFireOnce(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	rec := &recorder{}
	clk := clock.NewMock()
	a, err := New(withPoll(complete, time.Second), WithNotifier(rec), WithSource(src), WithClock(clk))
	require.NoError(t, err)

	a.FetchConfigFile(context.Background()) //nolint:errcheck
	require.Equal(t, 1, clk.Pending())

	a.TogglePollLoop(false)
	assert.False(t, a.PollEnabled())
	assert.Equal(t, 1, rec.count("poll:false"))
	assert.Equal(t, Armed, a.State(), "pending fetch is not cancelled")

	clk.Add(10 * time.Second)
	assert.Equal(t, 2, src.Calls())
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, Disabled, a.State())

	a.TogglePollLoop(true)
	assert.Equal(t, Idle, a.State())
	assert.Equal(t, 0, clk.Pending(), "enabling does not fetch by itself")

	a.FetchConfigFile(context.Background()) //nolint:errcheck
	assert.Equal(t, 1, clk.Pending())
}

func TestManualFetchKeepsSinglePendingFetch(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	clk := clock.NewMock()
	a, err := New(withPoll(complete, time.Second), WithNotifier(notify.Nop{}), WithSource(src), WithClock(clk))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		a.FetchConfigFile(context.Background()) //nolint:errcheck
	}
	assert.Equal(t, 1, clk.Pending())

	clk.Add(3 * time.Second)
	assert.Equal(t, 6, src.Calls())
	assert.Equal(t, 1, clk.Pending())
}

func TestWake(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	clk := clock.NewMock()
	a, err := New(withPoll(complete, time.Minute), WithNotifier(notify.Nop{}), WithSource(src), WithClock(clk))
	require.NoError(t, err)

	assert.False(t, a.Wake(), "nothing pending yet")

	a.FetchConfigFile(context.Background()) //nolint:errcheck
	src.set(result{data: config.Config{"v": 2.0}})
	events := collect(a)

	assert.True(t, a.Wake())
	assert.Equal(t, []config.Config{{"v": 2.0}}, events())
	assert.Equal(t, 1, clk.Pending())
	assert.Equal(t, 2, src.Calls())
}

func TestWakeFromSubscriberDuringFetch(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	clk := clock.NewMock()
	a, err := New(withPoll(complete, time.Minute), WithNotifier(notify.Nop{}), WithSource(src), WithClock(clk))
	require.NoError(t, err)

	_, err = a.FetchConfigFile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, clk.Pending())

	var woke []bool
	a.Subscribe(func(config.Config) { woke = append(woke, a.Wake()) })
	src.set(result{data: config.Config{"v": 2.0}})

	done := make(chan struct{})
	go func() {
		a.FetchConfigFile(context.Background()) //nolint:errcheck
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not return")
	}
	assert.Equal(t, []bool{false}, woke)
	assert.Equal(t, 1, clk.Pending(), "pending fetch is left in place")
	assert.Equal(t, Armed, a.State())
}

func TestCancelledContextStopsArming(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
	clk := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(withPoll(complete, time.Second), WithNotifier(notify.Nop{}), WithSource(src),
		WithClock(clk), WithContext(ctx))
	require.NoError(t, err)

	a.FetchConfigFile(context.Background()) //nolint:errcheck
	cancel()
	clk.Add(time.Second)

	assert.Equal(t, 2, src.Calls())
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, Idle, a.State())
}

func TestMute(t *testing.T) {
	src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}, {err: errors.New("boom")}}}
	rec := &recorder{}
	p := complete
	p.Mute = true
	a, err := New(p, WithNotifier(rec), WithSource(src), WithClock(clock.NewMock()))
	require.NoError(t, err)
	events := collect(a)

	a.FetchConfigFile(context.Background()) //nolint:errcheck
	a.FetchConfigFile(context.Background()) //nolint:errcheck
	a.TogglePollLoop(true)

	assert.Empty(t, rec.all())
	assert.Len(t, events(), 1, "muting silences notifications, not subscribers")
}

func TestRawConfigLogging(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		development bool
		want        int
	}{
		{"quiet_production", false, false, 0},
		{"verbose_production", true, false, 0},
		{"quiet_development", false, true, 0},
		{"verbose_development", true, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			p := complete
			p.Verbose = tt.verbose
			p.Development = tt.development
			src := &fakeSource{results: []result{{data: config.Config{"v": 1.0}}}}
			a, err := New(p, WithNotifier(notify.Nop{}), WithSource(src),
				WithClock(clock.NewMock()), WithLogger(zap.New(core)))
			require.NoError(t, err)

			_, err = a.FetchConfigFile(context.Background())
			require.NoError(t, err)

			received := logs.FilterMessage("received configuration")
			assert.Equal(t, tt.want, received.Len())
			if tt.want > 0 {
				assert.Equal(t, zapcore.InfoLevel, received.All()[0].Level)
			}
		})
	}
}

func TestPrintConnection(t *testing.T) {
	rec := &recorder{}
	a, err := New(complete, WithNotifier(rec))
	require.NoError(t, err)
	a.PrintConnection()
	assert.Equal(t, []string{"connection:infra"}, rec.all())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "armed", Armed.String())
	assert.Equal(t, "disabled", Disabled.String())
	assert.Equal(t, "unknown", State(42).String())
}
