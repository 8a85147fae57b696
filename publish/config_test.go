package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_PUBLISH_PREFIX"} {
		t.Setenv(k, "")
	}
}

func TestResolveDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Config{}.Resolve()
	assert.False(t, cfg.Enabled())
	assert.Equal(t, "automesh", cfg.ClientID)
	assert.Equal(t, DefaultPrefix, cfg.PublishPrefix)
}

func TestResolveEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("MQTT_PUBLISH_PREFIX", "cfd")
	t.Setenv("MQTT_PASSWORD", "secret")

	cfg := Config{
		Broker:        "tcp://file:1883",
		ClientID:      "from-file",
		Username:      "user",
		PublishPrefix: "file-prefix",
	}.Resolve()

	assert.True(t, cfg.Enabled())
	assert.Equal(t, "tcp://env:1883", cfg.Broker)
	assert.Equal(t, "from-file", cfg.ClientID)
	assert.Equal(t, "user", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "cfd", cfg.PublishPrefix)
}

func TestClientOptions(t *testing.T) {
	clearEnv(t)

	opts := Config{Broker: "tcp://localhost:1883", Username: "u", Password: "p"}.Resolve().ClientOptions()
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "localhost:1883", opts.Servers[0].Host)
	assert.Equal(t, "automesh", opts.ClientID)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.False(t, opts.AutoReconnect)

	anon := Config{Broker: "tcp://localhost:1883"}.Resolve().ClientOptions()
	assert.Empty(t, anon.Username)
}
