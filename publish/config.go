// Package publish sends automesh run reports to an MQTT broker.
package publish

import (
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "automesh"

// Config holds broker settings. Environment variables take precedence over
// file values.
type Config struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"clientId"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	PublishPrefix string `yaml:"publishPrefix"`
}

// Resolve applies the MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME,
// MQTT_PASSWORD and MQTT_PUBLISH_PREFIX overrides and fills defaults.
func (c Config) Resolve() Config {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if c.ClientID == "" {
		c.ClientID = "automesh"
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.PublishPrefix = v
	}
	if c.PublishPrefix == "" {
		c.PublishPrefix = DefaultPrefix
	}
	return c
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// ClientOptions builds paho options for a resolved config.
func (c Config) ClientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.Broker)
	opts.SetClientID(c.ClientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}

	// One-shot runs connect, publish and disconnect; no background reconnect.
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	return opts
}
