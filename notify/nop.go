package notify

var _ Notifier = Nop{}

// Nop implements a Notifier that reports nothing. The fatal variant of
// MissingInputs still returns an error.
type Nop struct{}

func (Nop) ConnectionEstablished(string)      {}
func (Nop) ConnectionFailed(error)            {}
func (Nop) LocalMode()                        {}
func (Nop) FetchFailed(string, string, error) {}
func (Nop) LocalFetchFailed(error)            {}
func (Nop) Connection(Connection)             {}
func (Nop) ConfigReceived(string)             {}
func (Nop) PollToggled(bool)                  {}

func (Nop) MissingInputs(missing []string, local, fatal bool) error {
	if fatal {
		return MissingError(missing)
	}
	return nil
}
