// Package agentsim parses simulator command flags and runs the simulated
// agent backend.
package agentsim

import (
	"context"
	"flag"
	"fmt"
	"time"

	sim "github.com/louisbranch/agentwire/internal/agentsim"
	entrypoint "github.com/louisbranch/agentwire/internal/platform/cmd"
)

// Config holds simulator command configuration.
type Config struct {
	HTTPAddr          string        `env:"AGENTWIRE_SIM_HTTP_ADDR"           envDefault:":8000"`
	HeartbeatInterval time.Duration `env:"AGENTWIRE_SIM_HEARTBEAT_INTERVAL"  envDefault:"30s"`
	ResponseDelay     time.Duration `env:"AGENTWIRE_SIM_RESPONSE_DELAY"      envDefault:"250ms"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "simulator HTTP listen address")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between server keepalive pings")
	fs.DurationVar(&cfg.ResponseDelay, "response-delay", cfg.ResponseDelay, "pause between scripted reply frames")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the simulator and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAgentSim, func(ctx context.Context) error {
		if err := sim.Run(ctx, sim.Config{
			HTTPAddr:          cfg.HTTPAddr,
			HeartbeatInterval: cfg.HeartbeatInterval,
			ResponseDelay:     cfg.ResponseDelay,
		}); err != nil {
			return fmt.Errorf("serve simulator: %w", err)
		}
		return nil
	})
}
