// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/openwire/client"
	"github.com/absmach/openwire/openwire"
	"github.com/absmach/openwire/transport"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for an OpenWire client.
type Config struct {
	Broker         BrokerConfig     `yaml:"broker"`
	Connection     ConnectionConfig `yaml:"connection"`
	WireFormat     WireFormatConfig `yaml:"wire_format"`
	Session        SessionConfig    `yaml:"session"`
	Consumer       ConsumerConfig   `yaml:"consumer"`
	Producer       ProducerConfig   `yaml:"producer"`
	RequestBreaker BreakerConfig    `yaml:"request_breaker"`
	Log            LogConfig        `yaml:"log"`
	Telemetry      TelemetryConfig  `yaml:"telemetry"`
}

// BrokerConfig locates the broker.
type BrokerConfig struct {
	Address     string        `yaml:"address"` // host:port
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ConnectionConfig holds connection-level settings.
type ConnectionConfig struct {
	ClientID       string        `yaml:"client_id"` // generated when empty
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CloseTimeout   time.Duration `yaml:"close_timeout"`
	AsyncSend      bool          `yaml:"async_send"`
}

// WireFormatConfig holds the wire format preferences sent to the broker.
type WireFormatConfig struct {
	Version                   int           `yaml:"version"`
	MinimumVersion            int           `yaml:"minimum_version"`
	TightEncodingEnabled      bool          `yaml:"tight_encoding_enabled"`
	SizePrefixDisabled        bool          `yaml:"size_prefix_disabled"`
	StackTraceEnabled         bool          `yaml:"stack_trace_enabled"`
	TCPNoDelayEnabled         bool          `yaml:"tcp_no_delay_enabled"`
	MaxInactivityDuration     time.Duration `yaml:"max_inactivity_duration"` // 0 defers to the broker
	MaxInactivityInitialDelay time.Duration `yaml:"max_inactivity_initial_delay"`
	MaxFrameSize              int64         `yaml:"max_frame_size"`
}

// SessionConfig holds session settings.
type SessionConfig struct {
	AckMode string `yaml:"ack_mode"` // auto, client, dups_ok, transactional
}

// ConsumerConfig holds consumer settings.
type ConsumerConfig struct {
	PrefetchSize int32 `yaml:"prefetch_size"`

	// Redeliveries after rollback before the message is poison acked.
	// Negative means unlimited.
	MaximumRedeliveryCount int32 `yaml:"maximum_redelivery_count"`
}

// ProducerConfig holds producer settings.
type ProducerConfig struct {
	CompressMessages bool    `yaml:"compress_messages"`
	SendRateLimit    float64 `yaml:"send_rate_limit"` // messages per second, 0 = unlimited
	SendBurst        int     `yaml:"send_burst"`
}

// BreakerConfig holds the request circuit breaker configuration.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Endpoint        string  `yaml:"endpoint"` // OTLP gRPC endpoint
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"` // 0.0 to 1.0
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	wf := openwire.DefaultOptions()
	return &Config{
		Broker: BrokerConfig{
			Address:     client.DefaultAddress,
			DialTimeout: client.DefaultDialTimeout,
		},
		Connection: ConnectionConfig{
			RequestTimeout: client.DefaultRequestTimeout,
			CloseTimeout:   client.DefaultCloseTimeout,
		},
		WireFormat: WireFormatConfig{
			Version:                   wf.Version,
			MinimumVersion:            wf.MinimumVersion,
			TightEncodingEnabled:      wf.TightEncodingEnabled,
			SizePrefixDisabled:        wf.SizePrefixDisabled,
			StackTraceEnabled:         wf.StackTraceEnabled,
			TCPNoDelayEnabled:         wf.TCPNoDelayEnabled,
			MaxInactivityDuration:     wf.MaxInactivityDuration,
			MaxInactivityInitialDelay: wf.MaxInactivityInitialDelay,
			MaxFrameSize:              wf.MaxFrameSize,
		},
		Session: SessionConfig{
			AckMode: client.AutoAcknowledge.String(),
		},
		Consumer: ConsumerConfig{
			PrefetchSize:           client.DefaultPrefetchSize,
			MaximumRedeliveryCount: client.DefaultMaximumRedeliveryCount,
		},
		Producer: ProducerConfig{
			SendBurst: 1,
		},
		RequestBreaker: BreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Endpoint:        "localhost:4317",
			ServiceName:     "openwire-client",
			ServiceVersion:  "1.0.0",
			MetricsEnabled:  false,
			TracesEnabled:   false,
			TraceSampleRate: 0.1,
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker.Address == "" {
		return fmt.Errorf("broker.address cannot be empty")
	}
	if c.Broker.DialTimeout <= 0 {
		return fmt.Errorf("broker.dial_timeout must be positive")
	}

	if c.Connection.RequestTimeout <= 0 {
		return fmt.Errorf("connection.request_timeout must be positive")
	}
	if c.Connection.CloseTimeout <= 0 {
		return fmt.Errorf("connection.close_timeout must be positive")
	}

	if err := c.WireFormatOptions().Validate(); err != nil {
		return fmt.Errorf("wire_format: %w", err)
	}

	if _, err := client.ParseAckMode(c.Session.AckMode); err != nil {
		return fmt.Errorf("session.ack_mode must be one of: auto, client, dups_ok, transactional")
	}

	if c.Consumer.PrefetchSize < 0 {
		return fmt.Errorf("consumer.prefetch_size cannot be negative")
	}

	if c.Producer.SendRateLimit < 0 {
		return fmt.Errorf("producer.send_rate_limit cannot be negative")
	}
	if c.Producer.SendRateLimit > 0 && c.Producer.SendBurst < 1 {
		return fmt.Errorf("producer.send_burst must be at least 1 when rate limiting")
	}

	if c.RequestBreaker.Enabled {
		if c.RequestBreaker.FailureThreshold < 1 {
			return fmt.Errorf("request_breaker.failure_threshold must be at least 1")
		}
		if c.RequestBreaker.ResetTimeout <= 0 {
			return fmt.Errorf("request_breaker.reset_timeout must be positive")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	// OpenTelemetry validation (only if something is exported)
	if c.Telemetry.MetricsEnabled || c.Telemetry.TracesEnabled {
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.TraceSampleRate < 0.0 || c.Telemetry.TraceSampleRate > 1.0 {
			return fmt.Errorf("telemetry.trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	return nil
}

// AckMode returns the configured session acknowledgement mode.
func (c *Config) AckMode() client.AckMode {
	m, err := client.ParseAckMode(c.Session.AckMode)
	if err != nil {
		return client.AutoAcknowledge
	}
	return m
}

// WireFormatOptions converts the wire_format section.
func (c *Config) WireFormatOptions() openwire.Options {
	wf := c.WireFormat
	return openwire.Options{
		Version:                   wf.Version,
		MinimumVersion:            wf.MinimumVersion,
		TightEncodingEnabled:      wf.TightEncodingEnabled,
		SizePrefixDisabled:        wf.SizePrefixDisabled,
		StackTraceEnabled:         wf.StackTraceEnabled,
		TCPNoDelayEnabled:         wf.TCPNoDelayEnabled,
		MaxInactivityDuration:     wf.MaxInactivityDuration,
		MaxInactivityInitialDelay: wf.MaxInactivityInitialDelay,
		MaxFrameSize:              wf.MaxFrameSize,
	}
}

// ClientOptions converts the configuration into connection options. The
// logger, meter and tracer are left for the caller to set.
func (c *Config) ClientOptions() *client.Options {
	return client.NewOptions().
		SetAddress(c.Broker.Address).
		SetDialTimeout(c.Broker.DialTimeout).
		SetClientID(c.Connection.ClientID).
		SetCredentials(c.Connection.Username, c.Connection.Password).
		SetRequestTimeout(c.Connection.RequestTimeout).
		SetCloseTimeout(c.Connection.CloseTimeout).
		SetAsyncSend(c.Connection.AsyncSend).
		SetWireFormat(c.WireFormatOptions()).
		SetBreaker(transport.BreakerOptions{
			Enabled:          c.RequestBreaker.Enabled,
			FailureThreshold: c.RequestBreaker.FailureThreshold,
			ResetTimeout:     c.RequestBreaker.ResetTimeout,
		}).
		SetPrefetchSize(c.Consumer.PrefetchSize).
		SetMaximumRedeliveryCount(c.Consumer.MaximumRedeliveryCount).
		SetCompressMessages(c.Producer.CompressMessages).
		SetSendRateLimit(c.Producer.SendRateLimit, c.Producer.SendBurst)
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
