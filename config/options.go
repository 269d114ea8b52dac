package config

// Option mutates a Config in place, in the functional-options style
// momentics-hioload-ws uses for its server construction.
type Option func(*Config)

// WithAddress overrides the listen address.
func WithAddress(addr string) Option {
	return func(c *Config) { c.Server.Address = addr }
}

// WithPort overrides the listen port.
func WithPort(port int) Option {
	return func(c *Config) { c.Server.Port = port }
}

// WithReadBufferLen overrides the per-stream read buffer size.
func WithReadBufferLen(n int) Option {
	return func(c *Config) { c.Server.ReadBufferLen = n }
}

// WithLogLevel overrides the slog level name ("debug", "info", "warn", "error").
func WithLogLevel(level string) Option {
	return func(c *Config) { c.Log.Level = level }
}

// New builds a Config starting from Default and applying opts in order.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
