package qsapi

import (
	"fmt"
	"os"
	"time"
)

const (
	// DefaultUser is the user name attached to requests when none is configured.
	// Applications should set a meaningful user name.
	DefaultUser = "Queue Server API User"

	// DefaultUserGroup is the user group attached to requests when none is
	// configured.
	DefaultUserGroup = "admin"

	// DefaultStatusExpiration is how long a cached status snapshot stays valid.
	DefaultStatusExpiration = 500 * time.Millisecond

	// DefaultStatusPolling is the status polling period used by wait operations.
	DefaultStatusPolling = time.Second

	// DefaultWaitTimeout is the timeout applied to wait operations when the
	// caller does not supply one.
	DefaultWaitTimeout = 60 * time.Second
)

// Environment variables consulted for connection defaults, matching the
// variables recognized by the qserver tooling.
const (
	EnvZMQControlAddress = "QSERVER_ZMQ_CONTROL_ADDRESS"
	EnvZMQInfoAddress    = "QSERVER_ZMQ_INFO_ADDRESS"
	EnvHTTPServerURI     = "QSERVER_HTTP_SERVER_URI"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	user                string
	userGroup           string
	failedRequestErrors bool
	statusExpiration    time.Duration
	statusPolling       time.Duration

	zmqControlAddr string
	zmqInfoAddr    string
	zmqSendTimeout time.Duration
	zmqRecvTimeout time.Duration
	zmqPublicKey   string

	httpServerURI string
	httpTimeout   time.Duration

	consoleMaxMsgs  int
	consoleMaxLines int
}

func defaultConfig() clientConfig {
	return clientConfig{
		user:                DefaultUser,
		userGroup:           DefaultUserGroup,
		failedRequestErrors: true,
		statusExpiration:    DefaultStatusExpiration,
		statusPolling:       DefaultStatusPolling,
		consoleMaxMsgs:      1000,
		consoleMaxLines:     1000,
	}
}

// WithUser sets the default user name attached to mutating requests.
// Ignored by the HTTP transport, which derives identity from login
// information.
func WithUser(user string) Option {
	return func(c *clientConfig) { c.user = user }
}

// WithUserGroup sets the default user group attached to mutating requests.
func WithUserGroup(group string) Option {
	return func(c *clientConfig) { c.userGroup = group }
}

// WithFailedRequestErrors controls whether requests rejected by the manager
// (response "success": false) are returned as RequestFailedError. Enabled by
// default. Timeout errors are unaffected.
func WithFailedRequestErrors(enabled bool) Option {
	return func(c *clientConfig) { c.failedRequestErrors = enabled }
}

// WithStatusExpiration sets the expiration period for the cached manager
// status.
func WithStatusExpiration(d time.Duration) Option {
	return func(c *clientConfig) { c.statusExpiration = d }
}

// WithStatusPolling sets the status polling period used by wait operations.
func WithStatusPolling(d time.Duration) Option {
	return func(c *clientConfig) { c.statusPolling = d }
}

// WithZMQControlAddress sets the address of the manager control socket
// (default tcp://localhost:60615, or QSERVER_ZMQ_CONTROL_ADDRESS if set).
func WithZMQControlAddress(addr string) Option {
	return func(c *clientConfig) { c.zmqControlAddr = addr }
}

// WithZMQInfoAddress sets the address of the manager info socket used by the
// console monitor (default tcp://localhost:60625, or QSERVER_ZMQ_INFO_ADDRESS
// if set).
func WithZMQInfoAddress(addr string) Option {
	return func(c *clientConfig) { c.zmqInfoAddr = addr }
}

// WithZMQTimeouts sets the send and receive timeouts for the 0MQ transport.
func WithZMQTimeouts(send, recv time.Duration) Option {
	return func(c *clientConfig) {
		c.zmqSendTimeout = send
		c.zmqRecvTimeout = recv
	}
}

// WithZMQPublicKey sets the manager public key for encrypted 0MQ
// communication. Encryption is not currently supported and NewZMQ returns an
// error if a key is supplied.
func WithZMQPublicKey(key string) Option {
	return func(c *clientConfig) { c.zmqPublicKey = key }
}

// WithHTTPServerURI sets the URI of the bluesky HTTP server
// (default http://localhost:60610, or QSERVER_HTTP_SERVER_URI if set).
func WithHTTPServerURI(uri string) Option {
	return func(c *clientConfig) { c.httpServerURI = uri }
}

// WithHTTPTimeout sets the per-request timeout for the HTTP transport.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.httpTimeout = d }
}

// WithConsoleBuffer sets the capacity of the console monitor message channel
// and of its accumulated text buffer. Both default to 1000.
func WithConsoleBuffer(maxMsgs, maxLines int) Option {
	return func(c *clientConfig) {
		if maxMsgs > 0 {
			c.consoleMaxMsgs = maxMsgs
		}
		if maxLines > 0 {
			c.consoleMaxLines = maxLines
		}
	}
}

// resolveZMQ fills connection settings from the environment where options
// left them empty.
func (c *clientConfig) resolveZMQ() error {
	if c.zmqControlAddr == "" {
		c.zmqControlAddr = os.Getenv(EnvZMQControlAddress)
	}
	if c.zmqInfoAddr == "" {
		c.zmqInfoAddr = os.Getenv(EnvZMQInfoAddress)
	}
	if c.zmqInfoAddr == "" {
		c.zmqInfoAddr = DefaultZMQInfoAddress
	}
	if c.zmqPublicKey == "" {
		c.zmqPublicKey = os.Getenv("QSERVER_ZMQ_PUBLIC_KEY")
	}
	if c.zmqPublicKey != "" {
		return fmt.Errorf("encrypted 0MQ communication is not supported")
	}
	return nil
}

func (c *clientConfig) resolveHTTP() {
	if c.httpServerURI == "" {
		c.httpServerURI = os.Getenv(EnvHTTPServerURI)
	}
}

// Position selects a place in the queue: the front, the back or a numeric
// index. Negative indices count from the back, Python style: -1 is the last
// element.
type Position struct {
	name  string
	index int
}

// Front is the position before the first queue element.
func Front() Position { return Position{name: "front"} }

// Back is the position after the last queue element.
func Back() Position { return Position{name: "back"} }

// Index is a numeric queue position. Negative values count from the back.
func Index(i int) Position { return Position{index: i} }

func (p Position) value() any {
	if p.name != "" {
		return p.name
	}
	return p.index
}

func (p Position) String() string {
	if p.name != "" {
		return p.name
	}
	return fmt.Sprintf("%d", p.index)
}
