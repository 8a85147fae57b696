package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Timeout: time.Second}
}

func TestConnectFirstTry(t *testing.T) {
	client := NewMockClient()
	require.NoError(t, Connect(context.Background(), client, fastPolicy(3), nil))
	assert.True(t, client.IsConnected())
	assert.Equal(t, 1, client.ConnectCalls())
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := NewMockClient()
	client.SetConnectErrors(errors.New("refused"), errors.New("refused"))

	require.NoError(t, Connect(context.Background(), client, fastPolicy(3), zap.New(core)))
	assert.Equal(t, 3, client.ConnectCalls())
	assert.Equal(t, 2, logs.FilterMessage("MQTT connection failed").Len())
}

func TestConnectGivesUp(t *testing.T) {
	client := NewMockClient()
	refused := errors.New("refused")
	client.SetConnectErrors(refused, refused, refused)

	err := Connect(context.Background(), client, fastPolicy(2), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.False(t, client.IsConnected())
}

func TestConnectCancelled(t *testing.T) {
	client := NewMockClient()
	client.SetConnectErrors(errors.New("refused"), errors.New("refused"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := fastPolicy(5)
	policy.InitialDelay = time.Hour
	err := Connect(ctx, client, policy, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.ConnectCalls())
}

func TestDialDisabled(t *testing.T) {
	clearEnv(t)
	client, err := Dial(context.Background(), Config{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}
