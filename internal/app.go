package internal

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/identity-bot/internal/auth"
	"github.com/dgellow/identity-bot/internal/config"
	"github.com/dgellow/identity-bot/internal/crypto"
	"github.com/dgellow/identity-bot/internal/dialog"
	"github.com/dgellow/identity-bot/internal/idp"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/metrics"
	"github.com/dgellow/identity-bot/internal/server"
	"github.com/dgellow/identity-bot/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 10 * time.Minute
)

// IdentityBot is the complete bot application
type IdentityBot struct {
	config     config.Config
	httpServer *server.HTTPServer
	messages   *server.MessagesHandler
	limiter    *server.RateLimiter
	cleanup    *storage.CleanupManager
	store      storage.Store
}

// NewIdentityBot builds the store, provider registry, dialogs and HTTP surface
func NewIdentityBot(ctx context.Context, cfg config.Config) (*IdentityBot, error) {
	log.LogInfoWithFields("identitybot", "Building identity bot", map[string]any{
		"baseURL": cfg.App.BaseURL,
		"storage": cfg.Storage.Kind,
	})

	baseURL, err := url.Parse(cfg.App.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	registry, err := idp.NewRegistryFromConfig(cfg.Providers, baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to setup providers: %w", err)
	}

	store, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	m := metrics.New()
	svc := auth.NewService(store, registry, baseURL.String(), []byte(cfg.App.SigningKey), auth.WithRecorder(m))
	messages := server.NewMessagesHandler(dialog.NewDispatcher(store, svc))
	limiter := server.NewRateLimiter(cfg.App.RateLimit.RequestsPerSecond, cfg.App.RateLimit.Burst, cfg.App.RateLimit.TrustProxyHeaders)

	handler := server.Routes{
		Auth:           svc,
		Messages:       messages,
		Metrics:        m,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.App.AllowedOrigins,
		Realm:          cfg.App.Name,
	}.Handler()

	bot := &IdentityBot{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.App.Addr),
		messages:   messages,
		limiter:    limiter,
		store:      store,
	}

	// Redis expires keys itself; the other backends are swept
	if pruner, ok := store.(storage.Pruner); ok && cfg.Storage.TTL > 0 {
		bot.cleanup = storage.NewCleanupManager(pruner, cleanupInterval, cfg.Storage.TTL)
	}

	log.LogInfoWithFields("identitybot", "Providers registered", map[string]any{
		"providers": registry.Names(),
	})
	return bot, nil
}

// Messages returns the turn runner behind POST /api/messages
func (b *IdentityBot) Messages() *server.MessagesHandler {
	return b.messages
}

// Run serves HTTP until ctx is cancelled, a signal arrives or the server
// fails, then shuts down gracefully and closes the store
func (b *IdentityBot) Run(ctx context.Context) error {
	log.LogInfoWithFields("identitybot", "Starting identity bot", map[string]any{
		"addr": b.config.App.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		b.limiter.Run(gctx)
		return nil
	})

	if b.cleanup != nil {
		b.cleanup.Start(gctx)
	}

	g.Go(func() error {
		<-gctx.Done()

		reason := "context cancelled"
		if ctx.Err() == nil {
			reason = "server error"
		}
		log.LogInfoWithFields("identitybot", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := b.httpServer.Stop(shutdownCtx); err != nil {
			log.LogErrorWithFields("identitybot", "HTTP server shutdown error", map[string]any{
				"error": err.Error(),
			})
			return err
		}
		return nil
	})

	err := g.Wait()

	if b.cleanup != nil {
		b.cleanup.Stop()
	}
	if cerr := b.store.Close(); cerr != nil {
		log.LogErrorWithFields("identitybot", "Failed to close storage", map[string]any{
			"error": cerr.Error(),
		})
	}

	if err != nil {
		log.LogErrorWithFields("identitybot", "Shut down with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("identitybot", "Application shutdown complete", nil)
	return nil
}

// setupStorage creates the session store selected by the config
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Kind {
	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		return storage.NewFirestoreStore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection, encryptor)

	case config.StorageRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": cfg.RedisAddr,
			"db":   cfg.RedisDB,
		})
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		return storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  string(cfg.RedisPassword),
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		}, encryptor)

	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStore(), nil
	}
}
