package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// RetryPolicy bounds connection attempts.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration
}

// DefaultRetryPolicy tries three times with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Timeout:      10 * time.Second,
	}
}

// Dial resolves cfg and connects a new client. It returns a nil client and
// no error when no broker is configured.
func Dial(ctx context.Context, cfg Config, log *zap.Logger) (mqtt.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.Resolve()
	if !cfg.Enabled() {
		log.Debug("MQTT disabled: no broker configured")
		return nil, nil
	}
	client := mqtt.NewClient(cfg.ClientOptions())
	if err := Connect(ctx, client, DefaultRetryPolicy(), log.With(zap.String("broker", cfg.Broker))); err != nil {
		return nil, err
	}
	return client, nil
}

// Connect connects client, retrying with exponential backoff until the
// policy is exhausted or ctx is done.
func Connect(ctx context.Context, client mqtt.Client, policy RetryPolicy, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	delay := policy.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		log.Debug("connecting to MQTT broker", zap.Int("attempt", attempt))

		token := client.Connect()
		if token.WaitTimeout(policy.Timeout) {
			if lastErr = token.Error(); lastErr == nil {
				log.Info("connected to MQTT broker")
				return nil
			}
		} else {
			lastErr = fmt.Errorf("timed out after %v", policy.Timeout)
		}
		log.Warn("MQTT connection failed", zap.Int("attempt", attempt), zap.Error(lastErr))

		if attempt == policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("connecting to MQTT broker: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return fmt.Errorf("connecting to MQTT broker after %d attempts: %w", policy.Attempts, lastErr)
}
