package ui

import (
	"github.com/smallbiznis/productdesk/internal/config"
	"github.com/smallbiznis/productdesk/internal/ui/render"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ui",
	fx.Provide(newRenderer),
	fx.Provide(NewRegistry),
	fx.Invoke(registerHooks),
)

func newRenderer(cfg config.Config, log *zap.Logger) *render.Renderer {
	return render.NewRenderer(log, render.WithTitle(cfg.AppName))
}

func registerHooks(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStart: r.Start,
		OnStop:  r.Stop,
	})
}
