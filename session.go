package courier

import (
	"net/http"

	"github.com/roach88/courier/transport"
)

// SessionConfig is the immutable configuration a session is built from.
type SessionConfig struct {
	// BaseURL resolves relative request paths.
	BaseURL string

	// CDNURL replaces BaseURL for requests built with UseCDN.
	CDNURL string

	// Header is sent with every request; request headers take precedence.
	Header http.Header

	// UserAgent, when set, overrides any User-Agent in Header.
	UserAgent string

	// Transport configures the default net/http transport.
	Transport transport.Config
}

// DefaultSessionConfig returns a config with transport defaults and no base URL.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{Transport: transport.DefaultConfig()}
}

func (c SessionConfig) clone() SessionConfig {
	c.Header = c.Header.Clone()
	return c
}

// Session is a snapshot of configuration plus the transport built from it.
// Requests capture the current session when they start and keep it until
// they finish, so reconfiguring never disturbs in-flight work.
type Session struct {
	config     SessionConfig
	transport  transport.Transport
	generation uint64
}

// Config returns a copy of the session configuration.
func (s *Session) Config() SessionConfig { return s.config.clone() }

// Transport returns the transport requests in this session use.
func (s *Session) Transport() transport.Transport { return s.transport }

// Generation counts Configure and ResetSession calls, starting at 1.
func (s *Session) Generation() uint64 { return s.generation }
