// Package config loads the charge point configuration from TOML and turns it into the options of
// the packages it drives.
//
// Every key is optional; keys that are present override Default():
//
//	charge_point_id = "CP_1"
//	endpoints = ["ws://localhost:9000/ocpp"]
//	call_timeout = "30s"
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ocpp-rpc/loadbalance"
	"ocpp-rpc/middleware"
	"ocpp-rpc/registry"
	"ocpp-rpc/router"
	"ocpp-rpc/session"
	"ocpp-rpc/transport"
)

type Config struct {
	ChargePointID string
	Subprotocol   string

	Endpoints     []string // static central system URLs
	EtcdEndpoints []string // when set, endpoints are discovered in etcd instead
	Service       string
	Balancer      string

	LogLevel       string
	LogDevelopment bool
	MetricsAddr    string // serve prometheus metrics here when set

	CallTimeout           time.Duration
	SingleOutstandingCall bool
	MaxInboundConcurrency int64
	InboundQueueSize      int
	SendQueueSize         int

	HandlerTimeout    time.Duration
	HandlerRetries    int
	HandlerRetryDelay time.Duration
	InboundRate       float64 // inbound calls per second, 0 = unlimited
	InboundBurst      int

	PingInterval time.Duration
}

func Default() Config {
	return Config{
		Subprotocol:           "ocpp1.6",
		Service:               "central-system",
		Balancer:              loadbalance.NameRoundRobin,
		LogLevel:              "info",
		CallTimeout:           30 * time.Second,
		SingleOutstandingCall: true,
		MaxInboundConcurrency: 4,
		InboundQueueSize:      16,
		SendQueueSize:         64,
		HandlerTimeout:        10 * time.Second,
		HandlerRetryDelay:     100 * time.Millisecond,
		InboundBurst:          10,
		PingInterval:          30 * time.Second,
	}
}

type fileConfig struct {
	ChargePointID         string   `toml:"charge_point_id"`
	Subprotocol           string   `toml:"subprotocol"`
	Endpoints             []string `toml:"endpoints"`
	EtcdEndpoints         []string `toml:"etcd_endpoints"`
	Service               string   `toml:"service"`
	Balancer              string   `toml:"balancer"`
	LogLevel              string   `toml:"log_level"`
	LogDevelopment        bool     `toml:"log_development"`
	MetricsAddr           string   `toml:"metrics_addr"`
	CallTimeout           string   `toml:"call_timeout"`
	SingleOutstandingCall bool     `toml:"single_outstanding_call"`
	MaxInboundConcurrency int64    `toml:"max_inbound_concurrency"`
	InboundQueueSize      int      `toml:"inbound_queue_size"`
	SendQueueSize         int      `toml:"send_queue_size"`
	HandlerTimeout        string   `toml:"handler_timeout"`
	HandlerRetries        int      `toml:"handler_retries"`
	HandlerRetryDelay     string   `toml:"handler_retry_delay"`
	InboundRate           float64  `toml:"inbound_rate"`
	InboundBurst          int      `toml:"inbound_burst"`
	PingInterval          string   `toml:"ping_interval"`
}

// Load reads path over Default(). The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("charge_point_id") {
		cfg.ChargePointID = strings.TrimSpace(raw.ChargePointID)
	}
	if meta.IsDefined("subprotocol") {
		cfg.Subprotocol = strings.TrimSpace(raw.Subprotocol)
	}
	if meta.IsDefined("endpoints") {
		cfg.Endpoints = normalizeList(raw.Endpoints)
	}
	if meta.IsDefined("etcd_endpoints") {
		cfg.EtcdEndpoints = normalizeList(raw.EtcdEndpoints)
	}
	if meta.IsDefined("service") {
		cfg.Service = strings.TrimSpace(raw.Service)
	}
	if meta.IsDefined("balancer") {
		cfg.Balancer = strings.TrimSpace(raw.Balancer)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_development") {
		cfg.LogDevelopment = raw.LogDevelopment
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("single_outstanding_call") {
		cfg.SingleOutstandingCall = raw.SingleOutstandingCall
	}
	if meta.IsDefined("max_inbound_concurrency") {
		cfg.MaxInboundConcurrency = raw.MaxInboundConcurrency
	}
	if meta.IsDefined("inbound_queue_size") {
		cfg.InboundQueueSize = raw.InboundQueueSize
	}
	if meta.IsDefined("send_queue_size") {
		cfg.SendQueueSize = raw.SendQueueSize
	}
	if meta.IsDefined("handler_retries") {
		cfg.HandlerRetries = raw.HandlerRetries
	}
	if meta.IsDefined("inbound_rate") {
		cfg.InboundRate = raw.InboundRate
	}
	if meta.IsDefined("inbound_burst") {
		cfg.InboundBurst = raw.InboundBurst
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"call_timeout", raw.CallTimeout, &cfg.CallTimeout},
		{"handler_timeout", raw.HandlerTimeout, &cfg.HandlerTimeout},
		{"handler_retry_delay", raw.HandlerRetryDelay, &cfg.HandlerRetryDelay},
		{"ping_interval", raw.PingInterval, &cfg.PingInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	if c.ChargePointID == "" {
		errs = multierror.Append(errs, fmt.Errorf("charge_point_id is required"))
	}
	if len(c.Endpoints) == 0 && len(c.EtcdEndpoints) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("one of endpoints or etcd_endpoints is required"))
	}
	if len(c.EtcdEndpoints) > 0 && c.Service == "" {
		errs = multierror.Append(errs, fmt.Errorf("service is required with etcd_endpoints"))
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.CallTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout))
	}
	if c.MaxInboundConcurrency < 1 {
		errs = multierror.Append(errs, fmt.Errorf("max_inbound_concurrency must be at least 1, got %d", c.MaxInboundConcurrency))
	}
	if c.InboundQueueSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("inbound_queue_size must be at least 1, got %d", c.InboundQueueSize))
	}
	if c.SendQueueSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("send_queue_size must be at least 1, got %d", c.SendQueueSize))
	}
	if c.HandlerTimeout < 0 || c.HandlerRetryDelay < 0 || c.PingInterval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("handler_timeout, handler_retry_delay and ping_interval must not be negative"))
	}
	if c.HandlerRetries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("handler_retries must not be negative, got %d", c.HandlerRetries))
	}
	if c.InboundRate < 0 {
		errs = multierror.Append(errs, fmt.Errorf("inbound_rate must not be negative, got %g", c.InboundRate))
	}
	if c.InboundRate > 0 && c.InboundBurst < 1 {
		errs = multierror.Append(errs, fmt.Errorf("inbound_burst must be at least 1 when inbound_rate is set"))
	}
	return errs.ErrorOrNil()
}

func (c Config) SessionConfig() session.Config {
	return session.Config{
		CallTimeout:           c.CallTimeout,
		SingleOutstandingCall: c.SingleOutstandingCall,
		MaxInboundConcurrency: c.MaxInboundConcurrency,
		InboundQueueSize:      c.InboundQueueSize,
		SendQueueSize:         c.SendQueueSize,
	}
}

// RouterOptions builds the inbound middleware chain: logging, then rate limiting, then retries,
// then the per-attempt timeout.
func (c Config) RouterOptions(logger *zap.Logger) []router.Option {
	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if c.InboundRate > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(c.InboundRate, c.InboundBurst))
	}
	if c.HandlerRetries > 0 {
		mws = append(mws, middleware.RetryMiddleware(c.HandlerRetries, c.HandlerRetryDelay, logger))
	}
	if c.HandlerTimeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(c.HandlerTimeout))
	}
	return []router.Option{router.WithMiddleware(mws...)}
}

// Registry returns the etcd registry when etcd_endpoints is set, a static one otherwise.
func (c Config) Registry(logger *zap.Logger) (registry.Registry, error) {
	if len(c.EtcdEndpoints) > 0 {
		return registry.NewEtcd(c.EtcdEndpoints, logger)
	}
	eps := make([]registry.Endpoint, 0, len(c.Endpoints))
	for _, u := range c.Endpoints {
		eps = append(eps, registry.Endpoint{URL: u, Weight: 1})
	}
	return registry.NewStatic(c.Service, eps...), nil
}

func (c Config) DialOptions(logger *zap.Logger) transport.DialOptions {
	return transport.DialOptions{
		Subprotocols: []string{c.Subprotocol},
		PingInterval: c.PingInterval,
		Logger:       logger,
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
