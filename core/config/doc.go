// Package config provides type-safe environment variable loading with caching
// using Go generics. Each configuration type is loaded once and cached for
// subsequent calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct fields.
//
// Basic usage:
//
//	import "github.com/taskpilot/taskpilot/core/config"
//
//	type WorkerConfig struct {
//		Path        string        `env:"WORKER_PATH,required"`
//		Timeout     time.Duration `env:"WORKER_TIMEOUT" envDefault:"30s"`
//		MaxRestarts int           `env:"WORKER_MAX_RESTARTS" envDefault:"3"`
//	}
//
//	func main() {
//		var cfg WorkerConfig
//
//		// Load with error handling
//		if err := config.Load(&cfg); err != nil {
//			log.Fatal(err)
//		}
//
//		// Or panic on failure (useful for startup)
//		config.MustLoad(&cfg)
//	}
//
// # Caching Behavior
//
// Each configuration type is loaded only once per application lifetime:
//
//	var a WorkerConfig
//	config.Load(&a) // Loads from environment
//
//	var b WorkerConfig
//	config.Load(&b) // Returns cached value, a == b
//
// Different types are cached independently, so subsystems can keep their own
// configuration structs without interfering with each other.
package config
