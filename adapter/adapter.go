// Package adapter implements the configuration poll loop. An Adapter fetches a
// JSON configuration from a repository (or local.json in development), keeps
// the last snapshot, tells subscribers when it changes and re-schedules itself
// after every fetch while polling is enabled.
//
// The loop is a chain of single-shot deferred fetches. Every cycle ends with an
// arming decision and at most one fetch is ever pending.
package adapter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/picostack/gitadapter/clock"
	"github.com/picostack/gitadapter/config"
	"github.com/picostack/gitadapter/notify"
	"github.com/picostack/gitadapter/source"
)

// Params specifies the connection parameters. Values are expected to be fully
// resolved (flags, environment) by the caller.
type Params struct {
	Username     string
	Token        string
	Organization string
	Repository   string
	FileName     string

	// BaseURL of the REST API, defaults to source.DefaultBaseURL.
	BaseURL string

	// Clone fetches over git instead of the contents API. CloneURL defaults
	// to the GitHub HTTPS URL of the repository.
	Clone    bool
	CloneURL string
	Branch   string

	Local   bool
	Mute    bool
	Verbose bool

	// PollInterval of zero means the loop is never armed.
	PollInterval time.Duration
	// Poll is the initial state of the poll-enabled flag.
	Poll bool

	Development bool
}

// Owner returns the account the repository belongs to.
func (p Params) Owner() string {
	if p.Organization != "" {
		return p.Organization
	}
	return p.Username
}

// Missing returns the names of the required parameters that are empty.
func (p Params) Missing() (missing []string) {
	if p.Username == "" {
		missing = append(missing, "username")
	}
	if p.Token == "" {
		missing = append(missing, "token")
	}
	if p.Repository == "" {
		missing = append(missing, "repository")
	}
	if p.FileName == "" {
		missing = append(missing, "fileName")
	}
	return
}

// Adapter stores the state of one poll loop. Adapters share nothing with each
// other.
type Adapter struct {
	params   Params
	notifier notify.Notifier
	clock    clock.Clock
	client   *http.Client
	log      *zap.Logger
	ctx      context.Context
	workdir  string

	source source.Source
	github *source.GitHub

	// cycle serialises fetch cycles.
	cycle sync.Mutex

	mu          sync.Mutex
	state       State
	snapshot    config.Config
	poll        bool
	timer       clock.Timer
	subscribers map[int]func(config.Config)
	nextID      int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithNotifier sets the notifier, the default reports through zap.
func WithNotifier(n notify.Notifier) Option {
	return func(a *Adapter) { a.notifier = n }
}

// WithClock sets the scheduling capability of the poll loop.
func WithClock(c clock.Clock) Option {
	return func(a *Adapter) { a.clock = c }
}

// WithHTTPClient sets the client used for every API request.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithLogger sets the logger used for diagnostics that are not notifications.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// WithContext sets the context of fetches started by the poll loop. Once it is
// done the loop is no longer armed.
func WithContext(ctx context.Context) Option {
	return func(a *Adapter) { a.ctx = ctx }
}

// WithWorkingDirectory sets the directory local.json is read from.
func WithWorkingDirectory(dir string) Option {
	return func(a *Adapter) { a.workdir = dir }
}

// WithSource replaces the transport selected from the parameters.
func WithSource(s source.Source) Option {
	return func(a *Adapter) { a.source = s }
}

// New validates the parameters and creates an Adapter. Missing parameters are
// only tolerated in local development, anywhere else New fails with an error
// matching notify.ErrMissingArguments.
func New(p Params, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		params:      p,
		notifier:    notify.NewLogger(nil),
		clock:       clock.Real{},
		client:      cleanhttp.DefaultClient(),
		log:         zap.L(),
		ctx:         context.Background(),
		snapshot:    config.Config{},
		poll:        p.Poll,
		subscribers: make(map[int]func(config.Config)),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.checkInputs(); err != nil {
		return nil, err
	}

	a.github = &source.GitHub{
		BaseURL:    p.BaseURL,
		Owner:      p.Owner(),
		Repository: p.Repository,
		FileName:   p.FileName,
		Token:      p.Token,
		Client:     a.client,
	}
	if a.source == nil {
		a.source = a.selectSource()
	}
	if !a.poll {
		a.state = Disabled
	}

	a.log.Debug("created adapter",
		zap.String("source", a.source.Name()),
		zap.String("owner", p.Owner()),
		zap.String("repository", p.Repository),
		zap.String("file", p.FileName),
		zap.Duration("poll_interval", p.PollInterval),
		zap.Bool("poll", p.Poll))

	return a, nil
}

func (a *Adapter) checkInputs() error {
	missing := a.params.Missing()
	if a.params.Local && a.params.Development {
		a.notifier.LocalMode()
		if len(missing) > 0 {
			a.notifier.MissingInputs(missing, true, false) //nolint:errcheck
		}
		return nil
	}
	if len(missing) == 0 {
		return nil
	}
	if err := a.notifier.MissingInputs(missing, a.params.Local, true); err != nil {
		return err
	}
	return notify.MissingError(missing)
}

func (a *Adapter) selectSource() source.Source {
	switch {
	case a.params.Local:
		return &source.Local{Directory: a.workdir}
	case a.params.Clone:
		url := a.params.CloneURL
		if url == "" {
			url = source.CloneURL(a.params.Owner(), a.params.Repository)
		}
		return &source.Git{
			URL:      url,
			Branch:   a.params.Branch,
			FileName: a.params.FileName,
			Username: a.params.Username,
			Token:    a.params.Token,
		}
	default:
		return a.github
	}
}

// Subscribe registers fn for configuration changes. Every call receives its
// own deep copy of the new configuration. Subscribers run on the fetching
// goroutine and must not call FetchConfigFile, which waits for the cycle that
// is delivering to them. Wake called from a subscriber reports false.
func (a *Adapter) Subscribe(fn func(config.Config)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.subscribers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subscribers, id)
	}
}

// Snapshot returns a copy of the last reconciled configuration.
func (a *Adapter) Snapshot() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot.Copy()
}

// State returns the current state of the poll loop.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PollEnabled reports the poll-enabled flag.
func (a *Adapter) PollEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.poll
}

// PollInterval returns the configured poll interval.
func (a *Adapter) PollInterval() time.Duration {
	return a.params.PollInterval
}

// Params returns the parameters the adapter was created with.
func (a *Adapter) Params() Params {
	return a.params
}

// SourceName returns the label of the transport in use.
func (a *Adapter) SourceName() string {
	return a.source.Name()
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}
