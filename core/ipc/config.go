package ipc

import "time"

// Config carries supervisor defaults loadable from the environment via
// core/config.
//
// Example:
//
//	var cfg ipc.Config
//	config.MustLoad(&cfg)
//	proc := ipc.NewManagedProcess(workerPath, nil, cfg.Options()...)
type Config struct {
	RequestTimeout time.Duration `env:"IPC_REQUEST_TIMEOUT" envDefault:"30s"`
	AutoRestart    bool          `env:"IPC_AUTO_RESTART" envDefault:"false"`
	MaxRestarts    int           `env:"IPC_MAX_RESTARTS" envDefault:"3"`
}

// Options translates the configuration into process options.
func (c Config) Options() []ProcessOption {
	opts := []ProcessOption{WithTimeout(c.RequestTimeout)}
	if c.AutoRestart {
		opts = append(opts, WithAutoRestart(c.MaxRestarts))
	}
	return opts
}
