package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/Cheese-Arena/internal/builder"
	appcfg "github.com/park285/Cheese-Arena/internal/config"
	"github.com/park285/Cheese-Arena/internal/gateway"
	"github.com/park285/Cheese-Arena/internal/httpapi"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log.Options()); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := builder.New(ctx, cfg)
	if err != nil {
		obslog.L().Fatal("builder_error", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()

	if err := deps.StartRelay(ctx); err != nil {
		obslog.L().Fatal("relay_start_error", zap.Error(err))
	}

	gw := gateway.NewServer(deps.Tokens, deps.Engine, deps.Hub, deps.Messages, gateway.Options{})
	wsSrv := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	api := &fasthttp.Server{
		Handler:      httpapi.NewServer(deps.Tokens, deps.Lobby, deps.Messages).Handler(),
		Name:         "cheese-arena",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obslog.L().Info("ws_listen", zap.String("addr", cfg.WSAddr))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		obslog.L().Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		return api.ListenAndServe(cfg.HTTPAddr)
	})
	g.Go(func() error {
		return deps.Engine.RunRecovery(gctx, cfg.RecoverInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		werr := wsSrv.Shutdown(sctx)
		aerr := api.ShutdownWithContext(sctx)
		return errors.Join(werr, aerr)
	})

	if err := g.Wait(); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		return
	}
	obslog.L().Info("server_stopped")
}
