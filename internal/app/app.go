// Package app assembles the application from its parts: logger, plugin
// catalog, storage and queue backends, and the engine. It owns the startup
// sequence and translates configuration into wired components.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *catalog.Registry
	config   *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and plugin
// catalog. A manifest/handler mismatch is a programmer error and panics.
func NewApp(outW io.Writer, cfg *Config, modules ...catalog.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := catalog.NewRegistry()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		if err := mod.Register(reg); err != nil {
			panic(fmt.Errorf("failed to register plugin module: %w", err))
		}
	}
	logger.Debug("All plugin modules registered.", "count", len(modules))

	if cfg.ManifestsPath != "" {
		if err := loadManifestDir(reg, cfg.ManifestsPath); err != nil {
			panic(fmt.Errorf("failed to load plugin manifests: %w", err))
		}
		logger.Debug("External plugin manifests loaded.", "path", cfg.ManifestsPath)
	}

	if err := reg.Validate(ctx); err != nil {
		panic(err)
	}
	ids := reg.PluginIDs()
	sort.Strings(ids)
	logger.Debug("Catalog validation passed.", "plugins", ids)

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
	}
}

// Registry returns the application's plugin catalog. This is primarily for
// testing.
func (a *App) Registry() *catalog.Registry {
	return a.registry
}

// loadManifestDir registers every .hcl manifest in a directory. These are
// signature-only declarations for plugins whose handlers live in separate
// worker binaries.
func loadManifestDir(reg *catalog.Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".hcl" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := reg.LoadManifest(src, path); err != nil {
			return err
		}
	}
	return nil
}
