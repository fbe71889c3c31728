package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/radlink-systems/pacsgate/internal/audit"
	"github.com/radlink-systems/pacsgate/internal/config"
	"github.com/radlink-systems/pacsgate/internal/dispatch"
	"github.com/radlink-systems/pacsgate/internal/handlers"
	"github.com/radlink-systems/pacsgate/internal/logging"
	"github.com/radlink-systems/pacsgate/internal/middleware"
	"github.com/radlink-systems/pacsgate/internal/ratelimit"
	"github.com/radlink-systems/pacsgate/internal/replay"
	"github.com/radlink-systems/pacsgate/internal/rotation"
	"github.com/radlink-systems/pacsgate/internal/secrets"
	"github.com/radlink-systems/pacsgate/internal/server"
	"github.com/radlink-systems/pacsgate/internal/service"
	"github.com/radlink-systems/pacsgate/internal/signature"

	"github.com/nats-io/nats.go"
)

// Names of keys inside the webhook secret bundle.
const (
	webhookHMACKey  = "hmac_key"
	rotationHMACKey = "rotation_hmac_key"
	adminJWTKey     = "admin_jwt_key"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pacsgate",
	Short: "Webhook gateway between the imaging archive and the processing backend",
	Long: `pacsgate authenticates new-instance webhook notifications from the
imaging archive, guards against replayed and excessive traffic, and hands
validated notifications to the processing pipeline. It also coordinates
secret rotation for the archive boundary.`,
	Version: "0.1.0",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate a bcrypt hash for an admin API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Println(string(hash))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hashKeyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("pacsgate"))
	logging.SetDefault(logger)

	slog.Info("Starting pacsgate service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if cfgFile != "" {
		slog.Info("Loaded configuration", slog.String("config_path", cfgFile))
	}

	// Initialize secret provider
	var provider secrets.Provider
	switch cfg.Secrets.Provider {
	case "aws", "":
		awsProvider, err := secrets.NewAWSProvider(context.Background(), secrets.AWSConfig{
			Region:   cfg.Secrets.AWS.Region,
			Endpoint: cfg.Secrets.AWS.Endpoint,
		})
		if err != nil {
			log.Fatalf("Failed to initialize AWS secrets provider: %v", err)
		}
		provider = awsProvider
		log.Printf("Secrets provider: aws.secretsmanager (region: %s)", cfg.Secrets.AWS.Region)
	case "static":
		provider = secrets.NewStaticProvider(cfg.Secrets.Static)
		log.Println("WARNING: Using static secrets provider - development only")
	default:
		log.Fatalf("Unknown secrets provider: %s (supported: aws, static)", cfg.Secrets.Provider)
	}

	secretsClient := secrets.NewClient(provider, cfg.Secrets.Bundles, cfg.Secrets.CacheTTL, cfg.Secrets.FetchTimeout, logger)
	log.Printf("Secret cache TTL: %s (bundles: %d)", cfg.Secrets.CacheTTL, len(cfg.Secrets.Bundles))

	// Initialize replay protection
	var replayStore replay.Store
	if cfg.Redis.Enabled {
		store, err := replay.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis for replay protection: %v", err)
		}
		replayStore = store
		log.Printf("Replay protection backend: redis (%s)", cfg.Redis.URL)
	} else {
		replayStore = replay.NewMemoryStore(cfg.Webhook.ReplaySweepInterval)
		log.Println("Replay protection backend: memory (single instance only)")
	}
	defer replayStore.Close()

	replayGuard := replay.NewGuard(replayStore, cfg.Webhook.TimestampMaxAge, cfg.Webhook.ClockSkewAllowance)

	// Initialize rate limiter
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if cfg.Redis.Enabled {
			redisLimiter, err := ratelimit.NewRedisLimiter(cfg.Redis.URL, cfg.RateLimit.Requests, cfg.RateLimit.Window)
			if err != nil {
				log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
				log.Println("Falling back to in-memory rate limiting")
				limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
			} else {
				limiter = redisLimiter
			}
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		}
		log.Printf("Rate limiting enabled: %d requests per %s per source", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		limiter = &ratelimit.NoOpLimiter{}
		log.Println("Rate limiting disabled in configuration")
	}
	defer limiter.Close()

	// Initialize audit emitter
	auditSink, err := buildAuditSink(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize audit sink (backend: %s): %v", cfg.Audit.Backend, err)
	}
	redactor := audit.NewRedactor(cfg.Audit.SensitiveFields)
	emitter := audit.NewEmitter(auditSink, redactor, "pacsgate", cfg.Audit.Environment, cfg.Audit.BufferSize, logger)
	log.Printf("Audit trail backend: %s (buffer: %d)", cfg.Audit.Backend, cfg.Audit.BufferSize)

	// Initialize dispatch queue
	natsConn, err := nats.Connect(cfg.Dispatch.NatsURL,
		nats.Name("pacsgate-dispatch"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		log.Fatalf("Failed to connect to NATS for dispatch: %v", err)
	}
	publisher := dispatch.NewNATSPublisher(natsConn)
	dispatcher := dispatch.New(publisher, cfg.Dispatch.Subject, cfg.Dispatch.QueueSize, cfg.Dispatch.Workers, cfg.Dispatch.PublishTimeout, logger)
	log.Printf("Dispatch queue: subject=%s depth=%d workers=%d", cfg.Dispatch.Subject, cfg.Dispatch.QueueSize, cfg.Dispatch.Workers)

	// Initialize signature verification. Keys resolve through the secret
	// cache so rotation takes effect without a restart.
	webhookKeys := signature.KeyFunc(func(ctx context.Context) ([]byte, error) {
		return secretsClient.Key(ctx, "webhook", webhookHMACKey)
	})
	verifier := signature.NewVerifier(webhookKeys, replayGuard)

	var rotationVerifier *signature.Verifier
	if cfg.Rotation.RequireSignature {
		rotationKeys := signature.KeyFunc(func(ctx context.Context) ([]byte, error) {
			return secretsClient.Key(ctx, "webhook", rotationHMACKey)
		})
		rotationVerifier = signature.NewVerifier(rotationKeys, nil)
	} else {
		log.Println("WARNING: Rotation webhook signature verification disabled")
	}

	// Initialize rotation coordination
	var policy *rotation.Policy
	if cfg.Rotation.PolicyFile != "" {
		policy, err = rotation.LoadPolicyFile(cfg.Rotation.PolicyFile)
		if err != nil {
			log.Fatalf("Failed to load rotation policy %s: %v", cfg.Rotation.PolicyFile, err)
		}
		log.Printf("Rotation policy loaded from %s", cfg.Rotation.PolicyFile)
	} else {
		policy, err = rotation.LoadPolicy()
		if err != nil {
			log.Fatalf("Failed to load embedded rotation policy: %v", err)
		}
	}

	controller := rotation.NewBridgeController(rotation.BridgeConfig{
		ConfigTemplate: cfg.Rotation.Bridge.ConfigTemplate,
		ConfigPath:     cfg.Rotation.Bridge.ConfigPath,
		RestartCommand: cfg.Rotation.Bridge.RestartCommand,
		EchoURL:        cfg.Rotation.Bridge.EchoURL,
		Timeout:        cfg.Rotation.Bridge.Timeout,
	})
	coordinator := rotation.NewCoordinator(secretsClient, policy, controller, emitter, cfg.Rotation.DedupeWindow, logger)

	// Initialize admin auth for the operational endpoints
	adminKeys := func() ([]byte, error) {
		return secretsClient.Key(context.Background(), "webhook", adminJWTKey)
	}
	adminAuth := middleware.NewAdminAuth(adminKeys, cfg.Admin.APIKeyHash)

	// Initialize HTTP handlers
	gateway := service.NewGateway(limiter, verifier, dispatcher, emitter, logger)
	webhookHandler := handlers.NewWebhookHandler(gateway, cfg.Webhook.MaxBodySize)
	secretsHandler := handlers.NewSecretsHandler(secretsClient, coordinator, rotationVerifier, emitter, logger)
	router := server.NewRouter(webhookHandler, secretsHandler, adminAuth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("pacsgate listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: Server forced to shutdown: %v", err)
	}

	// Drain in dependency order: no new requests, then queued jobs, then audit.
	if err := dispatcher.Close(); err != nil {
		log.Printf("WARNING: Dispatch queue close: %v", err)
	}
	if err := emitter.Close(); err != nil {
		log.Printf("WARNING: Audit emitter close: %v", err)
	}

	log.Println("Server stopped")
	return nil
}

func buildAuditSink(cfg *config.Config, logger *logging.Logger) (audit.Sink, error) {
	switch cfg.Audit.Backend {
	case "stdout", "":
		return audit.NewSlogSink(logger), nil
	case "nats":
		return audit.NewNATSSink(cfg.Audit.Nats.URL, cfg.Audit.Nats.Subject)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return audit.NewPostgresSink(ctx, cfg.Audit.Postgres.URL)
	case "opensearch":
		return audit.NewOpenSearchSink(audit.OpenSearchConfig{
			URL:           cfg.Audit.OpenSearch.URL,
			Username:      cfg.Audit.OpenSearch.Username,
			Password:      cfg.Audit.OpenSearch.Password,
			TLSSkipVerify: cfg.Audit.OpenSearch.TLSSkipVerify,
			IndexPrefix:   cfg.Audit.OpenSearch.IndexPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown audit backend: %s (supported: stdout, nats, postgres, opensearch)", cfg.Audit.Backend)
	}
}
