package qsapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, DefaultUser, cfg.user)
	assert.Equal(t, DefaultUserGroup, cfg.userGroup)
	assert.True(t, cfg.failedRequestErrors)
	assert.Equal(t, DefaultStatusExpiration, cfg.statusExpiration)
	assert.Equal(t, DefaultStatusPolling, cfg.statusPolling)
}

func TestOptions(t *testing.T) {
	cfg := defaultConfig()
	opts := []Option{
		WithUser("alice"),
		WithUserGroup("primary"),
		WithFailedRequestErrors(false),
		WithStatusExpiration(100 * time.Millisecond),
		WithStatusPolling(50 * time.Millisecond),
		WithZMQControlAddress("tcp://example:60615"),
		WithHTTPServerURI("http://example:60610"),
		WithHTTPTimeout(time.Second),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	assert.Equal(t, "alice", cfg.user)
	assert.Equal(t, "primary", cfg.userGroup)
	assert.False(t, cfg.failedRequestErrors)
	assert.Equal(t, 100*time.Millisecond, cfg.statusExpiration)
	assert.Equal(t, "tcp://example:60615", cfg.zmqControlAddr)
	assert.Equal(t, "http://example:60610", cfg.httpServerURI)
	assert.Equal(t, time.Second, cfg.httpTimeout)
}

func TestResolveZMQ(t *testing.T) {
	t.Run("environment variables fill empty settings", func(t *testing.T) {
		t.Setenv(EnvZMQControlAddress, "tcp://env-host:60615")
		t.Setenv(EnvZMQInfoAddress, "tcp://env-host:60625")

		cfg := defaultConfig()
		require.NoError(t, cfg.resolveZMQ())
		assert.Equal(t, "tcp://env-host:60615", cfg.zmqControlAddr)
		assert.Equal(t, "tcp://env-host:60625", cfg.zmqInfoAddr)
	})

	t.Run("options win over environment", func(t *testing.T) {
		t.Setenv(EnvZMQControlAddress, "tcp://env-host:60615")

		cfg := defaultConfig()
		WithZMQControlAddress("tcp://opt-host:60615")(&cfg)
		require.NoError(t, cfg.resolveZMQ())
		assert.Equal(t, "tcp://opt-host:60615", cfg.zmqControlAddr)
	})

	t.Run("info address falls back to default", func(t *testing.T) {
		t.Setenv(EnvZMQInfoAddress, "")

		cfg := defaultConfig()
		require.NoError(t, cfg.resolveZMQ())
		assert.Equal(t, DefaultZMQInfoAddress, cfg.zmqInfoAddr)
	})

	t.Run("public key is rejected", func(t *testing.T) {
		cfg := defaultConfig()
		WithZMQPublicKey("some-key")(&cfg)
		err := cfg.resolveZMQ()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not supported")
	})
}

func TestResolveHTTP(t *testing.T) {
	t.Setenv(EnvHTTPServerURI, "http://env-host:60610")

	cfg := defaultConfig()
	cfg.resolveHTTP()
	assert.Equal(t, "http://env-host:60610", cfg.httpServerURI)
}

func TestPosition(t *testing.T) {
	assert.Equal(t, "front", Front().value())
	assert.Equal(t, "back", Back().value())
	assert.Equal(t, 2, Index(2).value())
	assert.Equal(t, -1, Index(-1).value())

	assert.Equal(t, "front", Front().String())
	assert.Equal(t, "-1", Index(-1).String())
}
