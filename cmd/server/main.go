package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/procural/be-procurement/internal/client"
	"github.com/procural/be-procurement/internal/config"
	"github.com/procural/be-procurement/internal/database"
	"github.com/procural/be-procurement/internal/handler"
	"github.com/procural/be-procurement/internal/logger"
	"github.com/procural/be-procurement/internal/middleware"
	"github.com/procural/be-procurement/internal/repository"
	"github.com/procural/be-procurement/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting Procurement Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Connect to NATS; notifications are optional, the service runs
	// without them
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, notifications disabled")
		} else {
			defer natsConn.Drain()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	notifier := client.NewNotificationPublisher(natsConn, log)

	// Initialize repositories
	requestRepo := repository.NewRequestRepository(db)
	rulesRepo := repository.NewApprovalRulesRepository(db)
	ledgerRepo := repository.NewApprovalLedgerRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	orderRepo := repository.NewPurchaseOrderRepository(db)

	// Initialize services
	requestService := service.NewRequestService(requestRepo, log)
	workflowService := service.NewWorkflowService(db, requestRepo, rulesRepo, directoryRepo, ledgerRepo, orderRepo, log)
	workflowService.SetNotifier(notifier)
	orderService := service.NewOrderService(db, orderRepo, requestRepo, log)
	orderService.SetNotifier(notifier)
	ruleService := service.NewRuleService(rulesRepo, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(requestService, workflowService, orderService, ruleService, log)
	apiMux := http.NewServeMux()

	// Purchase request routes
	apiMux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRequests(w, r)
		case http.MethodPost:
			httpHandler.CreateRequest(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/v1/requests/get", httpHandler.GetRequest)
	apiMux.HandleFunc("/api/v1/requests/submit", httpHandler.SubmitRequest)
	apiMux.HandleFunc("/api/v1/requests/approve", httpHandler.ApproveRequest)
	apiMux.HandleFunc("/api/v1/requests/reject", httpHandler.RejectRequest)
	apiMux.HandleFunc("/api/v1/requests/history", httpHandler.RequestHistory)
	apiMux.HandleFunc("/api/v1/requests/delete", httpHandler.DeleteRequest)
	apiMux.HandleFunc("/api/v1/approvals/pending", httpHandler.PendingApprovals)

	// Purchase order routes
	apiMux.HandleFunc("/api/v1/orders", httpHandler.ListOrders)
	apiMux.HandleFunc("/api/v1/orders/get", httpHandler.GetOrder)
	apiMux.HandleFunc("/api/v1/orders/respond", httpHandler.RespondToOrder)

	// Approval rule routes
	apiMux.HandleFunc("/api/v1/rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRules(w, r)
		case http.MethodPost:
			httpHandler.CreateRule(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/v1/rules/update", httpHandler.UpdateRule)
	apiMux.HandleFunc("/api/v1/rules/delete", httpHandler.DeleteRule)

	// API routes require a valid token; health does not
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/api/", middleware.Auth(cfg.Auth.JWTSecret)(apiMux))

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server with health checks for platform probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
