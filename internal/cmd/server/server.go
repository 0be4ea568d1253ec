// Package server parses server command flags and runs the notes service.
package server

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/hdnotes/server/internal/app"
	"github.com/hdnotes/server/internal/platform/config"
	"github.com/hdnotes/server/internal/platform/otel"
)

// Config holds server command configuration.
type Config struct {
	Addr string `env:"HDNOTES_ADDR" envDefault:":8080"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the notes server.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "hdnotes")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return app.Run(ctx, cfg.Addr)
}
