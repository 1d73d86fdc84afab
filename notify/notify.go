// Package notify provides the human-facing reporting layer of the adapter. The
// adapter calls a Notifier for every event an operator may care about. None of
// the calls influence control flow, except MissingInputs which returns the
// fatal construction error.
package notify

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrMissingArguments is returned when required connection parameters are
// absent outside local development.
var ErrMissingArguments = errors.New("missing essential arguments")

// Connection describes the adapter's target for display purposes.
type Connection struct {
	Username     string
	Organization string
	Repository   string
	FileName     string
}

// Notifier describes a type that reports adapter events.
type Notifier interface {
	ConnectionEstablished(username string)
	ConnectionFailed(err error)
	LocalMode()
	// MissingInputs warns about absent parameters. When fatal is set it returns
	// an error wrapping ErrMissingArguments.
	MissingInputs(missing []string, local, fatal bool) error
	FetchFailed(fileName, repository string, err error)
	LocalFetchFailed(err error)
	Connection(info Connection)
	ConfigReceived(from string)
	PollToggled(enabled bool)
}

// MissingError builds the fatal error for a set of missing parameter names.
func MissingError(missing []string) error {
	return errors.WithMessage(ErrMissingArguments, strings.Join(missing, ", "))
}

var _ Notifier = &Logger{}

// Logger implements Notifier on top of a zap logger.
type Logger struct {
	log *zap.Logger
}

// NewLogger creates a Logger. A nil logger falls back to the global one.
func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.L()
	}
	return &Logger{log: l.Named("git-service-adapter")}
}

// ConnectionEstablished implements Notifier
func (n *Logger) ConnectionEstablished(username string) {
	n.log.Info("successfully established connection", zap.String("username", username))
}

// ConnectionFailed implements Notifier
func (n *Logger) ConnectionFailed(err error) {
	n.log.Error("could not establish connection, please check your input values", zap.Error(err))
}

// LocalMode implements Notifier
func (n *Logger) LocalMode() {
	n.log.Warn("local development environment, configuration will be loaded from local.json in the working directory",
		zap.String("file", "local.json"))
}

// MissingInputs implements Notifier
func (n *Logger) MissingInputs(missing []string, local, fatal bool) error {
	n.log.Warn("arguments were missing from the environment and from instantiation",
		zap.Strings("missing", missing),
		zap.Bool("local", local),
		zap.Bool("fatal", fatal))
	if fatal {
		return MissingError(missing)
	}
	return nil
}

// FetchFailed implements Notifier
func (n *Logger) FetchFailed(fileName, repository string, err error) {
	n.log.Error("could not fetch configuration file",
		zap.String("file", fileName),
		zap.String("repository", repository),
		zap.Error(err))
}

// LocalFetchFailed implements Notifier
func (n *Logger) LocalFetchFailed(err error) {
	n.log.Error("could not find or read local.json", zap.Error(err))
}

// Connection implements Notifier
func (n *Logger) Connection(info Connection) {
	n.log.Info("connection",
		zap.String("username", info.Username),
		zap.String("repository", info.Repository),
		zap.String("organization", info.Organization),
		zap.String("file", info.FileName))
}

// ConfigReceived implements Notifier
func (n *Logger) ConfigReceived(from string) {
	n.log.Info("received new configuration", zap.String("from", from))
}

// PollToggled implements Notifier
func (n *Logger) PollToggled(enabled bool) {
	n.log.Info("polling behaviour toggled", zap.Bool("enabled", enabled))
}
