package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline/queueserver/internal/config"
	"github.com/beamline/queueserver/pkg/qsapi"
)

func TestNewClientFromConfig(t *testing.T) {
	t.Run("zmq by default", func(t *testing.T) {
		client, err := newClientFromConfig(config.Default())
		require.NoError(t, err)
		defer client.Close()
		assert.Equal(t, qsapi.ProtocolZMQ, client.Protocol())
	})

	t.Run("http protocol selects the HTTP transport", func(t *testing.T) {
		cfg := config.Default()
		cfg.Protocol = "http"
		cfg.HTTP.ServerURI = "http://example:60610"

		client, err := newClientFromConfig(cfg)
		require.NoError(t, err)
		defer client.Close()
		assert.Equal(t, qsapi.ProtocolHTTP, client.Protocol())
	})

	t.Run("user identity from config", func(t *testing.T) {
		cfg := config.Default()
		cfg.User.Name = "operator"
		cfg.User.Group = "primary"

		client, err := newClientFromConfig(cfg)
		require.NoError(t, err)
		defer client.Close()
		assert.Equal(t, "operator", client.User())
		assert.Equal(t, "primary", client.UserGroup())
	})
}
