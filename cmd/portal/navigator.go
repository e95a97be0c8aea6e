package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"portal/internal/session/models"
)

// navigator renders navigation signals as hints on the terminal.
type navigator struct {
	out    io.Writer
	logger *slog.Logger
}

func newNavigator(out io.Writer, logger *slog.Logger) *navigator {
	return &navigator{out: out, logger: logger}
}

func (n *navigator) Navigate(ctx context.Context, route models.Route) {
	n.logger.DebugContext(ctx, "navigate", "route", route)
	switch route {
	case models.RouteHome:
		fmt.Fprintln(n.out, "signed in; next: portal profile show")
	case models.RouteLogin:
		fmt.Fprintln(n.out, "signed out; next: portal login")
	}
}
