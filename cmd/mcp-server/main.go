// Command mcp-server serves the demo and notes providers over the SSE,
// streamable HTTP and stdio transports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpmodule "github.com/vyvu99/mcp-server"
	"github.com/vyvu99/mcp-server/auth"
	"github.com/vyvu99/mcp-server/internal/config"
	"github.com/vyvu99/mcp-server/internal/logctx"
	"github.com/vyvu99/mcp-server/internal/notes"
	"github.com/vyvu99/mcp-server/internal/telemetry"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpservice"
	"github.com/vyvu99/mcp-server/storage"
	"github.com/vyvu99/mcp-server/storage/memory"
	redisstorage "github.com/vyvu99/mcp-server/storage/redis"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mcp-server:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// stdout belongs to the stdio transport, so logs always go to stderr.
	level := new(slog.LevelVar)
	lvl, _ := cfg.Log.SlogLevel()
	level.Set(lvl)
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	}
	log := logctx.NewLogger(h)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	authn, err := newAuthenticator(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	opts := []mcpmodule.Option{
		mcpmodule.WithLogger(log),
		mcpmodule.WithServerInfo(cfg.Server.Name, cfg.Server.Version),
		mcpmodule.WithInstructions(cfg.Server.Instructions),
		mcpmodule.WithCapabilities(mcp.ServerCapabilities{Logging: &struct{}{}}),
		mcpmodule.WithAPIPrefix(cfg.Server.APIPrefix),
		mcpmodule.WithEndpoints(cfg.Transport.SSEEndpoint, cfg.Transport.MessagesEndpoint, cfg.Transport.MCPEndpoint),
		mcpmodule.WithStatelessMode(cfg.Transport.Stateless),
		mcpmodule.WithJSONResponse(cfg.Transport.JSONResponse),
		mcpmodule.WithPing(cfg.KeepAlive.Enabled, cfg.KeepAlive.Interval),
	}
	var transports []mcpmodule.Transport
	for _, t := range cfg.Transports() {
		transports = append(transports, mcpmodule.Transport(t))
	}
	opts = append(opts, mcpmodule.WithTransports(transports...))
	if authn != nil {
		opts = append(opts, mcpmodule.WithAuthenticator(authn, ""))
	}

	obs := &telemetry.Observer{}
	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics, err = telemetry.NewMetrics(telemetry.MetricsConfig{ServiceName: cfg.Server.Name, ServiceVersion: cfg.Server.Version})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		obs.Metrics = metrics
		opts = append(opts, mcpmodule.WithMetrics(metrics))
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracing, err := telemetry.NewTracing(ctx, telemetry.TracingConfig{
			ServiceName:    cfg.Server.Name,
			ServiceVersion: cfg.Server.Version,
			Environment:    cfg.Telemetry.Environment,
			Exporter:       telemetry.ExporterOTLPHTTP,
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			Insecure:       cfg.Telemetry.OTLPInsecure,
			SampleRate:     cfg.Telemetry.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = tracing.Shutdown(sctx)
		}()
		obs.Tracer = tracing.Tracer()
	}
	opts = append(opts, mcpmodule.WithObserver(obs))

	reg := mcpservice.NewRegistry(mcpservice.WithLogger(log))
	if err := registerDemo(reg); err != nil {
		return err
	}
	if err := notes.New(store, log).Register(reg); err != nil {
		return err
	}

	mod, err := mcpmodule.New(reg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = mod.Close() }()

	httpEnabled := cfg.Enabled(config.TransportSSE) || cfg.Enabled(config.TransportStreamable)

	g, gctx := errgroup.WithContext(ctx)

	if httpEnabled {
		mux := http.NewServeMux()
		if metrics != nil {
			mux.Handle("GET "+cfg.Telemetry.MetricsPath, metrics.Handler())
		}
		mux.Handle("/", mod.Handler())
		srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			log.Info("http.listen", slog.String("addr", cfg.Server.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			// Streams stay open until their sessions are closed.
			_ = mod.Close()
			return srv.Shutdown(sctx)
		})
	}

	if cfg.Enabled(config.TransportStdio) {
		g.Go(func() error {
			err := mod.ServeStdio(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err == nil && !httpEnabled {
				// Input closed and nothing else to serve.
				stop()
			}
			return err
		})
	}

	if configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, configPath, log, func(next *config.Config) {
				mod.ConfigurePing(next.KeepAlive.Enabled, next.KeepAlive.Interval)
				if lvl, err := next.Log.SlogLevel(); err == nil {
					level.Set(lvl)
				}
			})
		})
	}

	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Storage) (storage.Storage, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return redisstorage.New(ctx, redisstorage.Config{Addr: cfg.RedisAddr, DB: cfg.RedisDB, KeyPrefix: cfg.KeyPrefix})
	default:
		return memory.New(cfg.MaxItems)
	}
}

// newAuthenticator returns nil when no issuer is configured.
func newAuthenticator(ctx context.Context, cfg config.Auth) (auth.Authenticator, error) {
	if cfg.Issuer == "" {
		return nil, nil
	}
	var opts []auth.AccessTokenAuthOption
	if scopes := cfg.RequiredScopes(); len(scopes) > 0 {
		opts = append(opts, auth.WithRequiredScopes(scopes...))
	}
	switch {
	case cfg.HMACSecret != "":
		return auth.NewHMAC(cfg.Issuer, cfg.Audience, []byte(cfg.HMACSecret), opts...)
	case cfg.JWKSURL != "":
		return auth.NewStatic(ctx, cfg.Issuer, cfg.Audience, cfg.JWKSURL, opts...)
	default:
		return auth.NewFromDiscovery(ctx, cfg.Issuer, cfg.Audience, opts...)
	}
}
