package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hylla/slate/internal/adapters/schemawatch"
	"github.com/hylla/slate/internal/adapters/server"
	"github.com/hylla/slate/internal/adapters/server/common"
	"github.com/hylla/slate/internal/adapters/server/livefeed"
	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/config"
)

func newServeCommand(state *cliState) *cobra.Command {
	var (
		bind    string
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, MCP tools and the live feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := state.openRuntime("serve")
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			if bind != "" {
				rt.cfg.Server.HTTPBind = bind
			}
			if noWatch {
				rt.cfg.Schema.Watch = false
			}
			return withCommandLog(rt.logger, "serve", func() error {
				return serve(ctx, rt)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "override server.http_bind")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the schema when entity metadata changes")
	return cmd
}

// serve wires the live feed into the service and schema registry, then runs the server and watcher together.
func serve(ctx context.Context, rt *runtime) error {
	hub := livefeed.NewHub(rt.logger.Component("livefeed"))
	rt.buildService(hub)
	rt.registry.AddSink(app.FileSchemaSink{Path: rt.cfg.Schema.OutputPath})
	rt.registry.AddSink(hub)

	if _, err := rt.loadSchema(ctx); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	board, err := rt.service.EnsureDefaultBoard(ctx)
	if err != nil {
		return fmt.Errorf("ensure default board: %w", err)
	}
	rt.logger.Info("default board ready", "board_id", board.ID, "name", board.Name)

	group, groupCtx := errgroup.WithContext(ctx)
	if rt.cfg.Schema.Watch {
		if err := config.EnsureConfigDir(rt.cfg.Schema.MetadataPath); err != nil {
			return fmt.Errorf("create metadata dir: %w", err)
		}
		watcher, err := schemawatch.New(rt.cfg.Schema.MetadataPath, rt.registry, rt.logger.Component("schemawatch"))
		if err != nil {
			return fmt.Errorf("configure schema watcher: %w", err)
		}
		group.Go(func() error {
			return watcher.Run(groupCtx)
		})
	}
	group.Go(func() error {
		return server.Run(groupCtx, serverConfig(rt.cfg.Server), server.Dependencies{
			Service: common.NewAppServiceAdapter(rt.service, rt.registry),
			Feed:    hub,
			Ready:   rt.repo.Ping,
			Logger:  rt.logger.Component("server"),
		})
	})
	return group.Wait()
}

func serverConfig(cfg config.ServerConfig) server.Config {
	return server.Config{
		HTTPBind:      cfg.HTTPBind,
		APIEndpoint:   cfg.APIEndpoint,
		MCPEndpoint:   cfg.MCPEndpoint,
		WSEndpoint:    cfg.WSEndpoint,
		ServerName:    "slate",
		ServerVersion: version,
	}
}
