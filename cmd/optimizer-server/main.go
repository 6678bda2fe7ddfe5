// Command optimizer-server runs the agent blueprint optimization HTTP
// service: a single long-running binary with graceful start/signal/shutdown
// handling and its own scoped dependency graph.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	v1 "station-aflowx-optimizer/internal/api/v1"
	"station-aflowx-optimizer/internal/artifact"
	"station-aflowx-optimizer/internal/auth"
	"station-aflowx-optimizer/internal/config"
	"station-aflowx-optimizer/internal/db"
	"station-aflowx-optimizer/internal/db/repositories"
	"station-aflowx-optimizer/internal/executor"
	"station-aflowx-optimizer/internal/executor/grpcbridge"
	"station-aflowx-optimizer/internal/executor/grpcbridge/externalpb"
	execmock "station-aflowx-optimizer/internal/executor/mock"
	"station-aflowx-optimizer/internal/idempotency"
	"station-aflowx-optimizer/internal/jobqueue"
	"station-aflowx-optimizer/internal/metrics"
	"station-aflowx-optimizer/internal/optimize"
	"station-aflowx-optimizer/internal/taxonomy"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("optimizer-server: %v", err)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadOptimizationConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo := repositories.NewOptimizationRepo(database.Conn())

	store, err := artifact.BuildStore(cfg.ArtifactStoreBackend, cfg.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("build artifact store: %w", err)
	}

	exec, closeExec, err := buildExecutor(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}
	defer closeExec()

	settings := optimize.Settings{
		DefaultDatasetSize:    cfg.DefaultDatasetSize,
		MaxSearchRounds:       cfg.MaxSearchRounds,
		MaxExpansionsPerRound: cfg.MaxExpansionsPerRound,
		MaxPromptCandidates:   cfg.MaxPromptCandidates,
		TrainRatio:            cfg.TrainRatio,
		ValRatio:              cfg.ValRatio,
		TestRatio:             cfg.TestRatio,
		JudgeBackend:          cfg.JudgeBackend,
	}
	svc := optimize.New(exec, nil, store, repo, settings)

	jobs := jobqueue.New(4)
	defer jobs.Stop()

	idemStore := idempotency.New()
	metricsReg := metrics.New()

	tenantCfg, err := buildTenantConfig(cfg)
	if err != nil {
		return fmt.Errorf("build tenant config: %w", err)
	}
	tenantMiddleware := auth.NewTenantMiddleware(tenantCfg)

	taxonomyRules := taxonomy.DefaultRules()

	handlers := v1.NewOptimizeHandlers(svc, repo, jobs, idemStore, metricsReg, tenantMiddleware, cfg.ManualBlueprintsRoot, taxonomyRules)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.RegisterRoutes(router.Group(""))

	addr := ":8090"
	if v := os.Getenv("OPT_LISTEN_ADDR"); v != "" {
		addr = v
	}
	httpServer := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("optimizer-server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildExecutor selects the mock in-process executor or a gRPC bridge to an
// external runtime per cfg.ExecutorMode, returning a closer that tears down
// the gRPC connection (a no-op for the mock executor).
func buildExecutor(ctx context.Context, cfg config.OptimizationConfig) (executor.Executor, func(), error) {
	if cfg.ExecutorMode != "external" {
		return execmock.New(), func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, cfg.ExecutorAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial external runtime at %s: %w", cfg.ExecutorAddr, err)
	}

	bridge := grpcbridge.New(externalpb.NewRuntimeClient(conn), grpcbridge.Config{
		Timeout:          cfg.ExecutorTimeout,
		MaxRetries:       cfg.ExecutorMaxRetries,
		Backoff:          cfg.ExecutorRetryBackoff,
		CircuitThreshold: cfg.CircuitThreshold,
		CircuitReset:     cfg.CircuitResetAfter,
	})
	return bridge, func() { _ = conn.Close() }, nil
}

// buildTenantConfig decodes the config's api_keys_json/jwt_keys_json
// blobs into the auth package's typed maps.
func buildTenantConfig(cfg config.OptimizationConfig) (auth.TenantConfig, error) {
	apiKeys := map[string]auth.APIKeyEntry{}
	if cfg.APIKeysJSON != "" {
		if err := json.Unmarshal([]byte(cfg.APIKeysJSON), &apiKeys); err != nil {
			return auth.TenantConfig{}, fmt.Errorf("parse api_keys_json: %w", err)
		}
	}

	var jwtKeys []auth.JWTKey
	if cfg.JWTKeysJSON != "" {
		if err := json.Unmarshal([]byte(cfg.JWTKeysJSON), &jwtKeys); err != nil {
			return auth.TenantConfig{}, fmt.Errorf("parse jwt_keys_json: %w", err)
		}
	}

	return auth.TenantConfig{
		Enabled:       cfg.AuthEnabled,
		APIKeys:       apiKeys,
		JWTKeys:       jwtKeys,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		ClockSkew:     cfg.JWTClockSkew,
		DefaultTenant: cfg.DefaultTenant,
	}, nil
}
