package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ammiranda/knowledge_tree/auth"
	"github.com/ammiranda/knowledge_tree/cache"
	"github.com/ammiranda/knowledge_tree/config"
	"github.com/ammiranda/knowledge_tree/handlers"
	"github.com/ammiranda/knowledge_tree/repository"
	"github.com/ammiranda/knowledge_tree/tree"
)

// newConfigProvider reads secrets from AWS when AWS_SECRET_NAME is set and
// from the environment otherwise
func newConfigProvider() (config.Provider, error) {
	if os.Getenv("AWS_SECRET_NAME") != "" {
		return config.NewAWSConfigProvider()
	}
	return config.NewEnvProvider(""), nil
}

func newLogger(env config.Environment) *slog.Logger {
	level := slog.LevelInfo
	if env == config.Development {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgProvider, err := newConfigProvider()
	if err != nil {
		log.Fatal("Failed to create config provider:", err)
	}

	appCfg, err := config.GetAppConfig(ctx, cfgProvider)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := newLogger(appCfg.Environment)
	slog.SetDefault(logger)

	repo, err := repository.Open(ctx, appCfg, cfgProvider)
	if err != nil {
		log.Fatal("Failed to initialize repository:", err)
	}
	defer repo.Cleanup(context.Background())

	if err := cache.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize cache:", err)
	}
	cache.SetCacheTTL(appCfg.CacheTTL)

	engine := tree.NewEngine(repo,
		tree.WithMaxDepth(appCfg.MaxTreeDepth),
		tree.WithLogger(logger),
	)
	treeHandler := handlers.NewTreeHandler(engine, auth.NewRoleAuthorizer(appCfg.MutationRoles...), logger)

	if appCfg.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("knowledge-tree"))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	treeHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(appCfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			"port", appCfg.Port,
			"storage", appCfg.StorageDriver,
			"max_tree_depth", appCfg.MaxTreeDepth)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
