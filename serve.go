package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/handlers"
	"messaging-service/internal/media"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/server"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the realtime gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, log)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("store init failed", "error", err)
		return err
	}
	defer st.close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info("event bus ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, log)

	mediaStore, closeMedia, err := openMedia(ctx, cfg, log)
	if err != nil {
		log.Error("media store init failed", "error", err)
		return err
	}
	defer closeMedia()

	hub := ws.NewHub(log)
	svc := services.NewChatService(services.Deps{
		Conversations: st.conversations,
		Messages:      st.messages,
		Unread:        st.unread,
		Users:         st.users,
		Media:         mediaStore,
		Hub:           hub,
		Log:           log,
	}, services.Options{
		StoreTimeout:     cfg.StoreTimeout,
		PageDefaultLimit: cfg.PageDefaultLimit,
		PageMaxLimit:     cfg.PageMaxLimit,
		MediaBaseURL:     cfg.MediaBaseURL,
	})

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	presence := ws.NewPresence()
	gateway := ws.NewGateway(hub, presence, verifier, svc, ws.GatewayOptions{
		SendBuffer:  cfg.WSSendBuffer,
		TypingRate:  cfg.TypingRate,
		TypingBurst: cfg.TypingBurst,
	}, log)

	router := server.NewRouter(server.Options{
		ServiceName:    cfg.ServiceName,
		Service:        svc,
		Verifier:       verifier,
		Realtime:       gateway.Handle,
		Media:          handlers.NewMediaHandler(mediaStore),
		MediaBasePath:  mediaPath(cfg.MediaBaseURL),
		Audit:          audit,
		Presence:       presence,
		MaxUploadBytes: cfg.MaxUploadBytes,
		DebugRoutes:    cfg.DebugRoutes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("messaging service listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunReconciler(gctx, cfg.ReconcileInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return err
	}
	return nil
}

func openMedia(ctx context.Context, cfg config.Config, log *slog.Logger) (media.Store, func(), error) {
	if cfg.MongoURI == "" {
		log.Info("media store in memory", "reason", "empty mongo uri")
		return media.NewMemoryStore(), func() {}, nil
	}
	store, err := media.NewGridFSStore(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close(context.Background()) }, nil
}

// mediaPath extracts the route prefix from the public media base URL.
func mediaPath(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Path == "" {
		return "/media"
	}
	return u.Path
}
