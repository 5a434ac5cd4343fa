// Command modctl manages the mod listing from a terminal.
//
// It reads the same configuration as the server (environment plus an
// optional .env file) and works on the same local database and GitHub
// documents.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sakif/minelux/internal/app"
	"github.com/sakif/minelux/internal/cli"
	"github.com/sakif/minelux/internal/config"
	"github.com/sakif/minelux/internal/logging"
)

func main() {
	var opened *app.App
	open := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load(".env")
		if err != nil {
			return nil, err
		}

		// Only problems reach the terminal; stdout is for command output.
		logger, _, err := logging.New(logging.Config{Level: "warn", Output: os.Stderr})
		if err != nil {
			return nil, err
		}
		if len(cfg.Generated) > 0 {
			logger.Warn("generated missing secrets for this run",
				slog.String("vars", strings.Join(cfg.Generated, ",")))
		}

		a, err := app.New(ctx, cfg, logger, app.Options{Session: true})
		opened = a
		return a, err
	}

	err := cli.RootCommand(open).ExecuteContext(context.Background())
	if opened != nil {
		opened.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
