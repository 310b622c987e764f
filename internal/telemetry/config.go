// Package telemetry provides OpenTelemetry instrumentation for the
// synchronization engine: OTLP-exported traces and metrics plus the HTTP
// middleware that records them.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "objectsync"

	// DefaultEndpoint is the default OTLP endpoint for telemetry
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the default trace sampling rate (5%)
	DefaultSampling = 0.05
)

// Config is the root telemetry configuration.
type Config struct {
	// Enabled controls whether telemetry is enabled globally. When false,
	// no providers are initialized.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies the service; defaults to "objectsync"
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion identifies the build; defaults to the application
	// version
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP collector endpoint in "host:port" form
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure allows plain HTTP to the collector. Development only.
	Insecure bool `yaml:"insecure,omitempty"`

	// Tracing holds tracing-specific configuration
	Tracing *TracingConfig `yaml:"tracing,omitempty"`

	// Metrics holds metrics-specific configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig enables and tunes tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the trace sampling ratio between 0 and 1; 0 means the
	// default rate
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig enables metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GetServiceName returns the service name, using the default if unset.
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version, "unknown" if unset.
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns the collector endpoint, using the default if unset.
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetSampling returns the sampling ratio. A zero value means the default
// rate; an explicit zero cannot be expressed in YAML.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate checks the telemetry configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Tracing != nil {
		if c.Tracing.Sampling < 0 || c.Tracing.Sampling > 1 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be between 0 and 1, got %v", c.Tracing.Sampling))
		}
	}
	if c.Endpoint != "" && !validEndpoint(c.Endpoint) {
		errs = append(errs, fmt.Errorf("endpoint %q must be host:port without a scheme", c.Endpoint))
	}
	return errors.Join(errs...)
}

func validEndpoint(endpoint string) bool {
	for i := 0; i+2 < len(endpoint); i++ {
		if endpoint[i] == ':' && endpoint[i+1] == '/' && endpoint[i+2] == '/' {
			return false
		}
	}
	return true
}
