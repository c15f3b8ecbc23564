package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suchitj2702/algo-irl/internal/common/cache"
	"github.com/suchitj2702/algo-irl/internal/common/db"
	commonmw "github.com/suchitj2702/algo-irl/internal/common/http/middleware"
	"github.com/suchitj2702/algo-irl/internal/common/mq"
	"github.com/suchitj2702/algo-irl/internal/common/storage"
	"github.com/suchitj2702/algo-irl/internal/execution/adapter"
	"github.com/suchitj2702/algo-irl/internal/execution/controller"
	"github.com/suchitj2702/algo-irl/internal/execution/judge0"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/orchestrator"
	"github.com/suchitj2702/algo-irl/internal/execution/reconciler"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
	"github.com/suchitj2702/algo-irl/internal/execution/service"
	"github.com/suchitj2702/algo-irl/internal/execution/store"
	"github.com/suchitj2702/algo-irl/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/execution_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	submissionStore := store.NewMySQLStore(mysqlDB, redisCache)
	statusCache := store.NewStatusCache(redisCache, appCfg.Status.TTL)
	judgeClient := judge0.NewClient(appCfg.Judge)

	var signer *service.CallbackSigner
	if appCfg.Callback.SigningSecret != "" {
		signer, err = service.NewCallbackSigner(appCfg.Callback.SigningSecret, appCfg.Callback.TokenTTL)
		if err != nil {
			logger.Error(context.Background(), "init callback signer failed", zap.Error(err))
			return
		}
	}

	batchOrchestrator, err := orchestrator.New(orchestrator.Config{
		Judge:       judgeClient,
		Store:       submissionStore,
		Limits:      appCfg.Limits,
		CallbackURL: service.CallbackURLBuilder(appCfg.Callback.BaseURL, signer),
	})
	if err != nil {
		logger.Error(context.Background(), "init orchestrator failed", zap.Error(err))
		return
	}

	var publisher service.CompletionPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		publisher = service.NewMQCompletionPublisher(mqClient, appCfg.Kafka.CompletionTopic)
	}

	completionReconciler, err := reconciler.New(reconciler.Config{
		Judge: judgeClient,
		Store: submissionStore,
		OnTerminal: func(ctx context.Context, submission *model.Submission) {
			if err := statusCache.Save(ctx, store.StatusSnapshot{
				SubmissionID: submission.ID,
				Status:       submission.Status,
				Results:      submission.Results,
			}); err != nil {
				logger.Warn(ctx, "save status snapshot failed",
					zap.String("submission_id", submission.ID), zap.Error(err))
			}
			if publisher == nil {
				return
			}
			if err := publisher.PublishCompletion(ctx, submission); err != nil {
				logger.Warn(ctx, "publish completion event failed",
					zap.String("submission_id", submission.ID), zap.Error(err))
			}
		},
	})
	if err != nil {
		logger.Error(context.Background(), "init reconciler failed", zap.Error(err))
		return
	}

	var archiver *service.SnapshotArchiver
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		archiver, err = service.NewSnapshotArchiver(objStorage, appCfg.Archive.Bucket)
		if err != nil {
			logger.Error(context.Background(), "init snapshot archiver failed", zap.Error(err))
			return
		}
	}

	executionSvc, err := service.New(service.Config{
		Registry:     adapter.DefaultRegistry(),
		Sandbox:      buildSandbox(appCfg.Sandbox),
		Orchestrator: batchOrchestrator,
		Reconciler:   completionReconciler,
		Store:        submissionStore,
		Limits:       appCfg.Limits,
		StatusCache:  statusCache,
		Idempotency:  redisCache,
		Archiver:     archiver,
		Publisher:    publisher,
		Signer:       signer,
	})
	if err != nil {
		logger.Error(context.Background(), "init execution service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, executionSvc, appCfg.Poll.toPolicy())
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "execution http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildSandbox(cfg SandboxConfig) sandbox.Sandbox {
	fast := sandbox.NewFastSandbox(sandbox.FastConfig{WorkRoot: cfg.WorkRoot})
	strict := sandbox.NewStrictSandbox(sandbox.StrictConfig{
		HelperPath:       cfg.HelperPath,
		SeccompProfile:   cfg.SeccompProfile,
		WorkRoot:         cfg.WorkRoot,
		EnableNamespaces: cfg.EnableNamespaces,
	})
	return sandbox.NewTieredSandbox(fast, strict, sandbox.TieredConfig{
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
	})
}

func buildHTTPServer(cfg ServerConfig, svc *service.ExecutionService, pollPolicy reconciler.Policy) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	controller.NewController(svc, pollPolicy).RegisterRoutes(router)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
