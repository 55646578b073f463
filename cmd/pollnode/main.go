// Executável do nó de enquetes: abre o armazenamento local, serve a API, expõe métricas e, se pedido,
// entra numa sala de compartilhamento para trocar enquetes e votos com os pares.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/marcelojr/enquetes/internal/app/httpapi"
	"github.com/marcelojr/enquetes/internal/app/polls"
	"github.com/marcelojr/enquetes/internal/app/sharing"
	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/antifraude"
	"github.com/marcelojr/enquetes/internal/platform/clock"
	"github.com/marcelojr/enquetes/internal/platform/config"
	"github.com/marcelojr/enquetes/internal/platform/health"
	"github.com/marcelojr/enquetes/internal/platform/ids"
	"github.com/marcelojr/enquetes/internal/platform/logger"
	"github.com/marcelojr/enquetes/internal/platform/migrations"
	filestorage "github.com/marcelojr/enquetes/internal/platform/storage/file"
	postgresstorage "github.com/marcelojr/enquetes/internal/platform/storage/postgres"
	redisstorage "github.com/marcelojr/enquetes/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuracao invalida", "err", err)
	}
	flags := pflag.NewFlagSet("pollnode", pflag.ExitOnError)
	config.BindFlags(flags, &cfg)
	_ = flags.Parse(os.Args[1:])
	if err := cfg.Validate(); err != nil {
		logger.Fatal("configuracao invalida", "err", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("falha ao abrir armazenamento", "store", cfg.Store, "err", err)
	}
	defer closeStore()

	service := polls.NewService(store, clock.NewSystemClock(), cfg.Nick)
	created, err := service.EnsureDefault(ctx)
	if err != nil {
		logger.Fatal("falha ao criar enquete padrao", "err", err)
	}
	if created {
		logger.Info("armazenamento vazio, enquete padrao criada", "apelido", cfg.Nick)
	}

	api := httpapi.New(service, logger.L())

	// Sem canal de pares o nó continua útil em modo individual.
	var redisClient *redis.Client
	var sessionState health.SessionState
	if cfg.Share {
		session, client, err := startSharing(ctx, cfg, service)
		if err != nil {
			logger.Warn("compartilhamento indisponivel, seguindo em modo individual", "err", err)
		} else {
			redisClient = client
			defer client.Close()
			defer session.Stop()
			api.WithSharing(session)
			sessionState = session
		}
	}

	mux := http.NewServeMux()
	checker := health.NewChecker(store, redisClient)
	if sessionState != nil {
		checker.WithSession(sessionState)
	}

	api.Register(mux)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("no de enquetes ouvindo", "addr", cfg.HTTPAddress, "apelido", cfg.Nick, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("erro no servidor", "err", err)
	}
	logger.Info("no de enquetes encerrado")
}

func openStore(ctx context.Context, cfg config.Config) (domain.PollStore, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite, config.StorePostgres:
		db, err := openDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("resgatar sql.DB: %w", err)
		}
		if cfg.AutoMigrate {
			if err := migrations.Run(db); err != nil {
				sqlDB.Close()
				return nil, nil, err
			}
		}
		return postgresstorage.NewPollRepository(db), func() { sqlDB.Close() }, nil

	default:
		store, err := filestorage.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	if cfg.Store == config.StorePostgres {
		return postgresstorage.Open(ctx, cfg.PostgresDSN())
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("criar diretorio do sqlite: %w", err)
	}
	return postgresstorage.OpenSQLite(cfg.SQLitePath)
}

// startSharing conecta ao Redis, entra na sala e deixa a sessão consumindo eventos em segundo plano.
func startSharing(ctx context.Context, cfg config.Config, service *polls.Service) (*sharing.Session, *redis.Client, error) {
	joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := redisstorage.Connect(joinCtx, redisstorage.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}

	room, err := redisstorage.Join(joinCtx, client, cfg.ChannelPrefix, cfg.Room, ids.NewPeerID(), cfg.Nick, cfg.QueueSize)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	var antifraudeSvc domain.Antifraude = antifraude.NewNoop()
	if cfg.RateLimitEnabled {
		window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
		antifraudeSvc = antifraude.NewRedisRateLimiter(client, cfg.RateLimitMaxActions, window, cfg.RateLimitKeyPrefix)
	}

	session := sharing.NewSession(room, service, room.Resolve).WithAntifraude(antifraudeSvc)
	service.Attach(session)
	if err := session.Start(ctx, cfg.Initiator); err != nil {
		service.Detach()
		session.Stop()
		client.Close()
		return nil, nil, err
	}

	go func() {
		defer service.Detach()
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sessao de compartilhamento interrompida", "err", err)
		}
	}()

	logger.Info("compartilhamento ativo", "sala", cfg.Room, "peer", room.Self(), "iniciador", cfg.Initiator)
	return session, client, nil
}
