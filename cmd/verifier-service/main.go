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

	commonmw "codeverifier/internal/common/http/middleware"
	"codeverifier/internal/verifier/controller"
	"codeverifier/internal/verifier/sandbox/container"
	"codeverifier/internal/verifier/service"
	"codeverifier/pkg/utils/logger"
	"codeverifier/pkg/utils/response"

	"github.com/docker/docker/client"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/verifier.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	var docker *client.Client
	if appCfg.needsDocker() {
		docker, err = newDockerClient(appCfg.Docker)
		if err != nil {
			logger.Error(ctx, "init docker client failed", zap.Error(err))
			return
		}
		defer func() {
			_ = docker.Close()
		}()
	}

	runtimes := make([]service.Runtime, 0, len(appCfg.Runtimes))
	for _, rc := range appCfg.Runtimes {
		var dockerClient container.Client
		if docker != nil {
			dockerClient = docker
		}
		rt, err := service.NewRuntime(rc, appCfg.Workspace.Root, dockerClient)
		if err != nil {
			logger.Error(ctx, "init runtime failed", zap.String("runtime", rc.Name), zap.Error(err))
			return
		}
		if rc.Kind == service.KindContainer && appCfg.Docker.PullImages {
			image := rc.Image
			if image == "" {
				image = container.DefaultImage
			}
			logger.Info(ctx, "pulling verifier image", zap.String("image", image))
			if err := container.PullImage(ctx, docker, image); err != nil {
				logger.Error(ctx, "pull verifier image failed", zap.String("image", image), zap.Error(err))
				return
			}
		}
		runtimes = append(runtimes, rt)
	}

	verifierSvc, err := service.NewService(service.Config{
		Runtimes:  runtimes,
		MaxJobs:   appCfg.Verifier.MaxJobs,
		QueueWait: appCfg.Verifier.QueueWait,
	})
	if err != nil {
		logger.Error(ctx, "init verifier service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg, verifierSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "verifier http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Strings("runtimes", verifierSvc.Runtimes()),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(ctx, appCfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
}

func newDockerClient(cfg DockerConfig) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	return client.NewClientWithOpts(opts...)
}

func buildHTTPServer(cfg *AppConfig, svc controller.Verifier) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      buildRouter(cfg, svc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func buildRouter(cfg *AppConfig, svc controller.Verifier) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(commonmw.RecoveryMiddleware())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLogMiddleware())
	router.Use(commonmw.CORSMiddleware(*cfg.CORS))

	verifierController := controller.NewVerifierController(svc, cfg.Server.MaxBodyBytes)
	router.NoMethod(verifierController.MethodNotAllowed)
	router.NoRoute(func(c *gin.Context) { response.NotFound(c, "") })

	if cfg.Static.Enabled {
		router.Static(cfg.Static.Prefix, cfg.Workspace.Root)
	}
	router.GET("/", verifierController.Index)
	router.GET("/:runtime", verifierController.Verify)
	router.POST("/:runtime", verifierController.Verify)
	router.OPTIONS("/:runtime", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	return router
}
