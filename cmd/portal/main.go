package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portal/internal/platform/config"
	"portal/internal/platform/logger"
)

// main owns the session manager lifecycle: config, logger, store and
// clients are built here, the command runs, and everything is closed.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	os.Exit(run(ctx, cfg, log, os.Args[1:], os.Stdin, os.Stdout))
}

const usage = `usage: portal <command> [flags]

commands:
  login      sign in and store the token pair
  logout     revoke and forget the stored pair
  status     show the session state
  register   create an account
  profile    show | update | delete
  todo       list | add | done | undo | rm
  serve      keep a session open and serve /healthz, /session, /metrics
`
