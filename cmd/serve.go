package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lepinkainen/imgmin/logging"
	"github.com/lepinkainen/imgmin/server"
	"github.com/lepinkainen/imgmin/types"
	"github.com/lepinkainen/imgmin/ui"
	"github.com/lepinkainen/imgmin/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

// ErrSignalReceived ends the serve loop on SIGINT or SIGTERM
var ErrSignalReceived = errors.New("signal received")

// ServeCmd exposes the compressor over HTTP for browser front ends
type ServeCmd struct {
	Addr  string `help:"Listen address (defaults to server.addr)"`
	Port  string `help:"Listen port (defaults to server.port)"`
	Debug bool   `help:"Mount pprof handlers under /debug"`
}

func (cmd *ServeCmd) Run(appCtx *types.AppContext) error {
	cfg := appCtx.GetConfig()
	logger := appCtx.GetLogger()

	if cmd.Addr != "" {
		cfg.Server.Addr = cmd.Addr
	}
	if cmd.Port != "" {
		cfg.Server.Port = cmd.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := worker.NewMetrics(reg)
	if err != nil {
		return err
	}
	requests, err := server.NewRequestCounter(reg)
	if err != nil {
		return err
	}

	w, cleanup, err := newWorker(ctx, appCtx, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	api := server.NewHandlers(w, server.Settings{
		Modes:          cfg.UI.Modes,
		DefaultMode:    cfg.UI.DefaultMode,
		Progressive:    cfg.UI.Progressive,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, logger)

	options := []server.RouterOption{
		server.WithLogger(logger),
		server.DefaultTechOptions(),
		server.WithMetrics(reg),
		server.WithApiHandler(api, requests),
	}
	if cmd.Debug {
		options = append(options, server.WithDebugHandler())
	}
	handler := server.NewHandler(options...)

	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("imgmin %s", appCtx.GetVersion())))
	fmt.Println(ui.InfoStyle.Render(fmt.Sprintf("Serving on http://%s", cfg.Server.Address())))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listenSignal(ctx, logger)
	})

	g.Go(func() error {
		return logging.LogIfError(
			logger, server.RunServer(ctx, cfg.Server.Address(), logger, handler), "Api server",
		)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, ErrSignalReceived) {
		logger.With("error", err).Errorf("Exit reason")
		return err
	}
	return nil
}

func listenSignal(ctx context.Context, logger *zap.SugaredLogger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return nil
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
		return ErrSignalReceived
	}
}
