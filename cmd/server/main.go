package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "retail-forecast-api/configs"
	"retail-forecast-api/pkg/handlers"
	"retail-forecast-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// .envファイルを読み込み
	envErr := godotenv.Load()

	// 設定の読み込み
	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Log.Warnf("Warning: .env file not found or could not be loaded: %v", envErr)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := handlers.NewApp(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to initialize application")
	}

	// 起動時にアーティファクトを読み込む（失敗しても初回リクエスト時に再試行される）
	if cfg.PreloadArtifacts {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := app.Store.Warmup(ctx); err != nil {
				logger.Log.WithError(err).Warn("artifact preload failed")
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":          cfg.Port,
			"model_variant": cfg.ModelVariant,
			"environment":   cfg.Environment,
		}).Info("Starting retail forecast API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("server shutdown failed")
	}
	logger.Log.Info("server stopped")
}
