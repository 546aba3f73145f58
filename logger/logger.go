package logger

// Logger is the interface that wraps basic logging methods.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config selects the logger backend and verbosity.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
}

// Factory creates a logger from cfg. A disabled config yields a no-op logger.
func Factory(cfg Config) (Logger, error) {
	if !cfg.Enabled {
		return NewNoOpLogger(), nil
	}
	return NewZapLogger(cfg)
}
