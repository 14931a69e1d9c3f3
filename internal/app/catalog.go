package app

import (
	"context"

	"github.com/zeusync/levelhost/internal/core/assets"
	"github.com/zeusync/levelhost/internal/core/audio"
	"github.com/zeusync/levelhost/internal/core/levels"
	"github.com/zeusync/levelhost/internal/core/services"
	"github.com/zeusync/levelhost/internal/core/ui"
	"github.com/zeusync/levelhost/internal/core/world"
	"github.com/zeusync/levelhost/internal/server"
)

// Built-in service kinds.
const (
	KindAudio   = "audio"
	KindUI      = "ui"
	KindAssets  = "assets"
	KindWorld   = "world"
	KindLevels  = "levels"
	KindMonitor = "monitor"
)

// NewCatalog registers every built-in kind. The asset provider comes with the
// level blueprint decoder installed.
func NewCatalog() *services.Catalog {
	c := services.NewCatalog()
	c.Register(KindAudio, audio.Kind())
	c.Register(KindUI, ui.Kind())
	c.Register(KindWorld, world.Kind())
	c.Register(KindLevels, levels.Kind())
	c.Register(KindMonitor, server.Kind())

	assetKind := assets.Kind()
	c.Register(KindAssets, services.Kind{
		New: func(_ context.Context, env services.Env) (services.Service, error) {
			s := assets.NewService(env)
			s.RegisterDecoder(levels.Category, levels.DecodeBlueprint)
			return s, nil
		},
		Settings: assetKind.Settings,
	})
	return c
}
