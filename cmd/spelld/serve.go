package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/metakeyai/spelld/pkg/event"
	"github.com/metakeyai/spelld/pkg/logging"
	"github.com/metakeyai/spelld/pkg/mcpserve"
	"github.com/metakeyai/spelld/pkg/server"
	"github.com/metakeyai/spelld/pkg/telemetry"
)

// maxConns caps concurrent HTTP connections; invocations are serialized
// anyway, so a large backlog only hides latency.
const maxConns = 64

func serveCommand(ctx context.Context, argv []string, cfgDir string, streams ioStreams) error {
	set := flag.NewFlagSet("serve", flag.ContinueOnError)
	set.SetOutput(streams.err)
	host := set.String("host", "", "Address to bind (overrides config).")
	port := set.Int("port", -1, "Port number for the HTTP server (overrides config).")
	stdio := set.Bool("stdio", false, "Serve MCP over stdio instead of HTTP.")
	debug := set.Bool("debug", false, "Enable debug logging.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: spelld serve [flags]")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
		fmt.Fprintln(streams.err, "\nRoutes:")
		fmt.Fprintln(streams.err, "  GET  /ping        Liveness probe")
		fmt.Fprintln(streams.err, "  GET  /health      Health payload")
		fmt.Fprintln(streams.err, "  GET  /spells      List registered spells")
		fmt.Fprintln(streams.err, "  POST /cast        Invoke a spell")
		fmt.Fprintln(streams.err, "  POST /env         Update environment, reconfigure the model")
		fmt.Fprintln(streams.err, "  POST /quick_edit  One-shot text improvement")
		fmt.Fprintln(streams.err, "  GET  /events      Cast lifecycle events via SSE")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := logging.New(*debug)
	defer func() { _ = logger.Sync() }()

	rt, err := buildRuntime(cfgDir, logger)
	if err != nil {
		return err
	}
	if *host != "" {
		rt.cfg.Host = strings.TrimSpace(*host)
	}
	if *port >= 0 {
		if *port > 65535 {
			return fmt.Errorf("invalid port %d", *port)
		}
		rt.cfg.Port = *port
	}

	mgr, err := telemetry.NewManager(telemetry.Config{
		ServiceName:    "spelld",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	telemetry.SetDefault(mgr)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	if *stdio {
		if err := rt.registry.Watch(ctx); err != nil {
			logger.Warn("spells watcher unavailable", zap.Error(err))
		}
		return mcpserve.New(rt.registry, rt.loader, rt.client, logger).Run(ctx)
	}
	return serveHTTP(ctx, rt, logger, streams)
}

func serveHTTP(ctx context.Context, rt *runtime, logger *zap.Logger, streams ioStreams) error {
	h := server.New(rt.registry, rt.loader, rt.client, logger)
	rt.registry.OnUpdate(func(count int) {
		_ = h.Events().Send(event.NewEvent(event.EventSpellsUpdated, "", event.SpellsUpdatedData{Count: count}))
	})
	if err := rt.registry.Watch(ctx); err != nil {
		logger.Warn("spells watcher unavailable", zap.Error(err))
	}
	listener, err := net.Listen("tcp", rt.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	listener = netutil.LimitListener(listener, maxConns)
	defer listener.Close()

	srv := &http.Server{Handler: h}
	addr := listener.Addr().String()
	logger.Info("daemon listening",
		zap.String("addr", addr),
		zap.Int("spells", rt.registry.Len()),
		zap.String("llm", rt.client.Name()))
	if streams.out != nil {
		fmt.Fprintf(streams.out, "spelld listening on http://%s\n", addr)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
