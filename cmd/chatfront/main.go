package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/config"
	"github.com/gaspardpetit/chatfront/internal/inflight"
	"github.com/gaspardpetit/chatfront/internal/logx"
	"github.com/gaspardpetit/chatfront/internal/metrics"
	"github.com/gaspardpetit/chatfront/internal/secret"
	"github.com/gaspardpetit/chatfront/internal/server"
	"github.com/gaspardpetit/chatfront/internal/serverstate"
	"github.com/gaspardpetit/chatfront/internal/session"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

// loadConfig resolves the configuration with precedence
// defaults < file < .env and environment < args.
func loadConfig(args []string, out io.Writer) (cfg config.ProxyConfig, showVersion bool, err error) {
	cfg.SetDefaults()
	if err := cfg.LoadEnvFile(cfg.EnvFile); err != nil {
		return cfg, false, err
	}
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	// Allow --config to override the file path before loading it.
	for i := 0; i < len(args); i++ {
		a := args[i]
		if (a == "--config" || a == "-config") && i+1 < len(args) {
			cfg.ConfigFile = args[i+1]
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			cfg.ConfigFile = v
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, false, fmt.Errorf("load config %s: %w", cfg.ConfigFile, err)
		}
	}
	cfg.ApplyEnv()

	fs := flag.NewFlagSet("chatfront", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	cfg.BindFlags(fs)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(out, "chatfront version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}
	if showVersion {
		return cfg, true, nil
	}
	return cfg, false, cfg.Validate()
}

func openStore(ctx context.Context, cfg config.ProxyConfig) (session.Store, func()) {
	if cfg.RedisAddr != "" {
		rs, err := session.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		logx.Log.Info().Msg("using redis session store")
		return rs, func() { _ = rs.Close() }
	}
	ms := session.NewMemoryStore()
	go ms.RunJanitor(ctx, time.Minute)
	logx.Log.Info().Msg("using in-memory session store")
	return ms, func() {}
}

// stopServer waits for in-flight requests unless force is set, in which
// case open connections, including streams, are closed at once.
func stopServer(srv *http.Server, force bool) error {
	if force {
		return srv.Close()
	}
	return srv.Shutdown(context.Background())
}

func main() {
	cfg, showVersion, err := loadConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if showVersion {
		fmt.Printf("chatfront version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.UsesDevSecret() {
		logx.Log.Warn().Str("secret", secret.Mask(cfg.SessionSecret)).Msg("using the built-in development session secret; set SESSION_SECRET")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	client := backend.New(cfg.BackendURL, server.BackendTimeouts(cfg), nil)
	handler, err := server.New(cfg, server.Deps{
		Backend:  client,
		Sessions: session.NewManager(store, server.SessionOptions(cfg)),
	})
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("build router")
	}
	// Build info is set after server.New registers the collectors.
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	var metricsSrv *http.Server
	if !cfg.SharedMetricsPort() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	streams := inflight.Streams()
	var force atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				force.Store(true)
				cancel()
				return
			}
			serverstate.StartDrain()
			waitCtx := ctx
			var stop context.CancelFunc
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Int64("open_streams", streams.Load()).Msg("draining; send SIGTERM again to terminate immediately")
				waitCtx, stop = context.WithTimeout(ctx, cfg.DrainTimeout)
			} else {
				logx.Log.Info().Int64("open_streams", streams.Load()).Msg("draining; send SIGTERM again to terminate immediately")
			}
			go func(stop context.CancelFunc, waitCtx context.Context) {
				if stop != nil {
					defer stop()
				}
				if streams.WaitForZero(waitCtx) {
					logx.Log.Info().Msg("drain complete; terminating")
					cancel()
					return
				}
				if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
					logx.Log.Warn().Int64("open_streams", streams.Load()).Msg("drain timeout exceeded; terminating")
					force.Store(true)
					cancel()
				}
			}(stop, waitCtx)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := stopServer(srv, force.Load()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()
	if metricsSrv != nil {
		go func() {
			<-ctx.Done()
			if err := stopServer(metricsSrv, force.Load()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}()
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	serverstate.SetState(serverstate.StatusReady)
	logx.Log.Info().Int("port", cfg.Port).Str("backend", cfg.BackendURL).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
