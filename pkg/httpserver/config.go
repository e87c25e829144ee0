package httpserver

import "time"

type Config struct {
	Addr            string        `env:"HTTP_ADDR"`
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ListenAddr returns Addr, falling back to ":"+Port as set by hosting
// platforms.
func (c Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	if c.Port != "" {
		return ":" + c.Port
	}
	return ":8080"
}

// NewFromConfig creates a Server from cfg. Zero durations keep the defaults.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	configOpts := []Option{WithAddr(cfg.ListenAddr())}
	if cfg.ReadTimeout > 0 {
		configOpts = append(configOpts, WithReadTimeout(cfg.ReadTimeout))
	}
	if cfg.WriteTimeout > 0 {
		configOpts = append(configOpts, WithWriteTimeout(cfg.WriteTimeout))
	}
	if cfg.IdleTimeout > 0 {
		configOpts = append(configOpts, WithIdleTimeout(cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout > 0 {
		configOpts = append(configOpts, WithShutdownTimeout(cfg.ShutdownTimeout))
	}
	return New(append(configOpts, opts...)...)
}
