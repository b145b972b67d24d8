package main

import (
	"context"

	"github.com/sells-group/reroute/internal/app"
)

// initApp validates the config for mode and builds the component graph.
// Callers should defer a.Close().
func initApp(ctx context.Context, mode string) (*app.App, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}
