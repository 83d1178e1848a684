package hub

import "github.com/pkg/errors"

// A service is a common interface for the last message processor in line.
// It usually is used by wrappers, that handle request parsing and delegate.
type Service interface {
	// Serve handles the message and returns the response data or nil.
	Serve(*Msg) interface{}
}

// ServiceFunc implements Service for simple functions.
type ServiceFunc func(*Msg) interface{}

func (f ServiceFunc) Serve(m *Msg) interface{} { return f(m) }

// ErrNoService is returned for messages with a subject no service handles.
var ErrNoService = errors.New("service not supported")

// Services is a map of message subjects to service processors.
type Services map[string]Service

// Handle calls the service with m's subject and returns the response data.
func (s Services) Handle(m *Msg) (interface{}, error) {
	f := s[m.Subj]
	if f == nil {
		return nil, errors.Wrapf(ErrNoService, "%s", m.Subj)
	}
	return f.Serve(m), nil
}
