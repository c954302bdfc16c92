package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixelsync-backend/internal/catalog"
	"pixelsync-backend/internal/config"
	"pixelsync-backend/internal/handlers"
	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/middleware"
	"pixelsync-backend/internal/models"
	"pixelsync-backend/internal/repository"
	"pixelsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultConfigPath = "config.yaml"

	// presenceHeartbeat renews this instance's online users on other instances
	presenceHeartbeat = 30 * time.Second
	presenceTTL       = 3 * presenceHeartbeat
)

// stores are the backing collections for the live channels
type stores struct {
	reactions live.Store[models.Reaction]
	comments  live.Store[models.Comment]
	registry  services.IdentityRegistry
	notifier  *repository.LiveNotifier
}

func Run() {
	// Load configuration
	path := os.Getenv("PIXELSYNC_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database, or fall back to in-memory collections
	st := stores{
		reactions: live.NewMemoryStore[models.Reaction](),
		comments:  live.NewMemoryStore[models.Comment](),
		registry:  services.NewMemoryIdentityRegistry(),
	}
	if cfg.Database.Enabled() {
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ping database")
		}
		log.Info().Msg("Database connection established")

		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}

		st = stores{
			reactions: repository.NewReactionRepository(db),
			comments:  repository.NewCommentRepository(db),
			registry:  repository.NewIdentityRepository(db),
			notifier:  repository.NewLiveNotifier(db),
		}
	} else {
		log.Warn().Msg("No database configured, using in-memory collections")
	}

	// Live channels
	opts := live.Options{
		RetryAttempts: cfg.Live.RetryAttempts,
		RetryBase:     cfg.Live.RetryBase,
	}
	if st.notifier != nil {
		opts.Publisher = st.notifier
	}
	reactions := live.NewChannel("reactions", st.reactions, opts)
	defer reactions.Close()
	comments := live.NewChannel("comments", st.comments, opts)
	defer comments.Close()

	// Presence spans instances when they share a database
	wsHub := services.NewWSHub()
	var presence services.Presence = wsHub
	if st.notifier != nil {
		instanceID := uuid.NewString()
		remote := services.NewRemotePresence(instanceID, presenceTTL)
		defer remote.Stop()
		presence = services.Presences{wsHub, remote}

		wsHub.SetPresenceHook(func(userID string, online bool) {
			go announcePresence(ctx, st.notifier, services.FormatPresence(instanceID, userID, online))
		})
		go heartbeatPresence(ctx, st.notifier, wsHub, instanceID)
		go listenForChanges(ctx, st.notifier, reactions, comments, remote)
	}

	// Photo catalog
	photoCatalog, err := newCatalog(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Catalog.Provider).Msg("Failed to create photo catalog")
	}
	cachedCatalog := catalog.NewCached(photoCatalog, cfg.Catalog.CacheTTL, cfg.Catalog.CacheCapacity)
	defer cachedCatalog.Stop()

	// Initialize services
	identityService := services.NewIdentityService(st.registry, cfg.Identity.Secret)
	reactionService := services.NewReactionService(reactions)
	commentService := services.NewCommentService(comments, newCommentNotifier(cfg, st.registry, presence))
	feedService := services.NewFeedService(reactions, comments)

	limiter := middleware.NewWriteLimiter(cfg.Limits.WritesPerSecond, cfg.Limits.Burst)
	go limiter.Run(ctx.Done())

	// Initialize handlers
	identityHandler := handlers.NewIdentityHandler(identityService)
	photoHandler := handlers.NewPhotoHandler(cachedCatalog, cfg.Catalog.PerPage)
	reactionHandler := handlers.NewReactionHandler(reactionService)
	commentHandler := handlers.NewCommentHandler(commentService)
	feedHandler := handlers.NewFeedHandler(feedService)
	wsHandler := handlers.NewWebSocketHandler(
		wsHub,
		reactionService,
		commentService,
		feedService,
		cachedCatalog,
		cfg.Catalog.PerPage,
		limiter,
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	cookieOpts := middleware.CookieOptions{
		Domain: cfg.Identity.CookieDomain,
		Secure: cfg.Identity.SecureCookie,
	}
	issueIdentity := middleware.IdentityMiddleware(identityService, cookieOpts)

	r.Route("/api/v1", func(r chi.Router) {
		// Reads see an existing identity but never create one
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalIdentity(identityService, cookieOpts))

			r.Get("/photos", photoHandler.ListPhotos)
			r.Get("/photos/{photo_id}", photoHandler.GetPhoto)
			r.Get("/photos/{photo_id}/reactions", reactionHandler.GetReactions)
			r.Get("/photos/{photo_id}/comments", commentHandler.GetComments)
			r.Get("/feed", feedHandler.GetFeed)
		})

		r.Group(func(r chi.Router) {
			r.Use(issueIdentity)
			r.Use(limiter.Middleware)

			r.Get("/identity", identityHandler.GetIdentity)
			r.Post("/identity", identityHandler.GetIdentity)
			r.Put("/identity/push-token", identityHandler.RegisterPushToken)

			r.Post("/photos/{photo_id}/reactions", reactionHandler.ToggleReaction)
			r.Post("/photos/{photo_id}/comments", commentHandler.PostComment)
			r.Delete("/comments/{comment_id}", commentHandler.DeleteComment)
		})
	})

	// WebSocket route
	r.With(issueIdentity).Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("catalog", cfg.Catalog.Provider).
			Bool("database", cfg.Database.Enabled()).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked websocket connections are not closed by Shutdown
	log.Info().Int("sessions", wsHub.Count()).Msg("Closing WebSocket sessions")
	wsHub.CloseAll()

	// Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	stop()
	log.Info().Msg("Server exited")
}

// newCatalog builds the configured photo provider
func newCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, error) {
	switch cfg.Catalog.Provider {
	case "unsplash":
		if cfg.Catalog.UnsplashAccessKey == "" {
			return nil, fmt.Errorf("catalog.unsplash_access_key is required for the unsplash provider")
		}
		return catalog.NewUnsplash(cfg.Catalog.UnsplashAccessKey, cfg.Catalog.UnsplashBaseURL, cfg.Catalog.PerPage), nil
	case "s3":
		return catalog.NewS3Catalog(ctx, catalog.S3Options{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			Prefix:    cfg.AWS.S3Prefix,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
			PerPage:   cfg.Catalog.PerPage,
		})
	case "mock":
		log.Warn().Msg("Using mock photo catalog")
		return catalog.NewMock(cfg.Catalog.PerPage), nil
	default:
		return nil, fmt.Errorf("unknown catalog provider %q", cfg.Catalog.Provider)
	}
}

// newCommentNotifier returns a push notifier when APNs is configured
func newCommentNotifier(cfg *config.Config, registry services.IdentityRegistry, presence services.Presence) services.CommentNotifier {
	if cfg.APNS.KeyPath == "" {
		return nil
	}

	sender, err := services.NewAPNSSender(cfg.APNS.KeyPath, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.Topic, cfg.APNS.Production)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create APNs client, comment notifications disabled")
		return nil
	}
	log.Info().Bool("production", cfg.APNS.Production).Msg("Comment notifications enabled")
	return services.NewThreadNotifier(registry, sender, presence)
}

// listenForChanges refreshes local subscriptions when another instance writes
// and records which identities are online elsewhere
func listenForChanges(ctx context.Context, notifier *repository.LiveNotifier, reactions *live.Channel[models.Reaction], comments *live.Channel[models.Comment], remote *services.RemotePresence) {
	refresh := func(collection string) {
		switch collection {
		case reactions.Name():
			reactions.Refresh()
		case comments.Name():
			comments.Refresh()
		}
	}

	for {
		err := notifier.Listen(ctx, refresh, remote.Observe)
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("Live change listener stopped, restarting")

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
		reactions.Refresh()
		comments.Refresh()
	}
}

func announcePresence(ctx context.Context, notifier *repository.LiveNotifier, payload string) {
	if err := notifier.PublishPresence(ctx, payload); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("Failed to announce presence")
	}
}

// heartbeatPresence re-announces every local online identity before remote entries lapse
func heartbeatPresence(ctx context.Context, notifier *repository.LiveNotifier, hub *services.WSHub, instanceID string) {
	ticker := time.NewTicker(presenceHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, userID := range hub.OnlineUsers() {
				announcePresence(ctx, notifier, services.FormatPresence(instanceID, userID, true))
			}
		}
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
