// Command haild runs the hail dispatch server: the operator HTTP API,
// the inbound webhook mount, and the channel health monitor.
//
// Configuration is taken from the environment:
//
//	HAIL_HTTP_ADDR          listen address (default ":8080")
//	HAIL_STORE              memory | mongo | bun | postgres | sqlite | redis
//	HAIL_STORE_DSN          backend connection string (unused for memory)
//	HAIL_GATEWAY_URL        primary channel gateway base URL
//	HAIL_GATEWAY_API_KEY    primary channel API key
//	HAIL_PROVIDER_URL       secondary provider base URL (optional)
//	HAIL_PROVIDER_TOKEN     secondary provider token
//	HAIL_PROVIDER_GROUP_ID  secondary provider broadcast group
//	HAIL_WEBHOOK_SECRET     shared secret for inbound signature checks
//	HAIL_OPERATOR_TOKEN     operator API token (unset: accept everything)
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/xraph/forge"
	"github.com/xraph/grove"

	"github.com/xraph/hail"
	"github.com/xraph/hail/api"
	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/channel/gateway"
	"github.com/xraph/hail/channel/provider"
	"github.com/xraph/hail/engine"
	"github.com/xraph/hail/store"
	bunstore "github.com/xraph/hail/store/bun"
	"github.com/xraph/hail/store/memory"
	"github.com/xraph/hail/store/mongo"
	"github.com/xraph/hail/store/postgres"
	redistore "github.com/xraph/hail/store/redis"
	"github.com/xraph/hail/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx := context.Background()

	// ──────────────────────────────────────────────────
	// 1. Open the store
	// ──────────────────────────────────────────────────

	st, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close() //nolint:errcheck // process is exiting

	if err := st.Migrate(ctx); err != nil {
		logger.Error("failed to migrate store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// ──────────────────────────────────────────────────
	// 2. Create the coordinator and channels
	// ──────────────────────────────────────────────────

	c, err := hail.New(
		hail.WithStore(st),
		hail.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create coordinator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	primary := gateway.New(
		envOr("HAIL_GATEWAY_URL", "http://localhost:9001"),
		os.Getenv("HAIL_GATEWAY_API_KEY"),
	)

	var secondary channel.Channel
	if url := os.Getenv("HAIL_PROVIDER_URL"); url != "" {
		secondary = provider.New(url,
			os.Getenv("HAIL_PROVIDER_TOKEN"),
			os.Getenv("HAIL_PROVIDER_GROUP_ID"),
		)
	}

	// ──────────────────────────────────────────────────
	// 3. Build the engine
	// ──────────────────────────────────────────────────

	eng, err := engine.Build(c, primary, secondary)
	if err != nil {
		logger.Error("failed to build engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// ──────────────────────────────────────────────────
	// 4. Create Forge app and register routes
	// ──────────────────────────────────────────────────

	app := forge.New(
		forge.WithAppName("haild"),
		forge.WithAppVersion("0.1.0"),
		forge.WithHTTPAddress(envOr("HAIL_HTTP_ADDR", ":8080")),
	)

	apiOpts := []api.Option{
		api.WithWebhookSecret([]byte(os.Getenv("HAIL_WEBHOOK_SECRET"))),
	}
	if token := os.Getenv("HAIL_OPERATOR_TOKEN"); token != "" {
		apiOpts = append(apiOpts, api.WithAuthenticator(api.NewAPIKeyAuthenticator(
			api.APIKeyEntry{
				Token: token,
				Identity: api.Identity{
					Subject: "operator",
					Scopes:  []string{api.ScopeOperator},
				},
			},
		)))
	} else {
		logger.Warn("HAIL_OPERATOR_TOKEN unset, operator API is open")
	}

	srv := api.New(eng, app.Router(), apiOpts...)
	srv.RegisterRoutes(app.Router())

	// ──────────────────────────────────────────────────
	// 5. Start and run
	// ──────────────────────────────────────────────────

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("haild running",
		slog.String("addr", envOr("HAIL_HTTP_ADDR", ":8080")),
		slog.String("store", envOr("HAIL_STORE", "memory")),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, c.Config().ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("goodbye")
}

// openStore selects a backend from HAIL_STORE and connects it.
func openStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	dsn := os.Getenv("HAIL_STORE_DSN")

	switch backend := envOr("HAIL_STORE", "memory"); backend {
	case "memory":
		return memory.New(), nil

	case "mongo":
		db, err := grove.Open(ctx, "mongo", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return mongo.New(db, mongo.WithLogger(logger)), nil

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil

	case "postgres":
		return postgres.New(ctx, dsn, postgres.WithLogger(logger))

	case "sqlite":
		db, err := grove.Open(ctx, "sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.New(db, sqlite.WithLogger(logger)), nil

	case "redis":
		opt, err := goredis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", err)
		}
		return redistore.New(goredis.NewClient(opt), redistore.WithLogger(logger)), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
