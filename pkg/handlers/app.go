package handlers

import (
	"fmt"

	config "retail-forecast-api/configs"
	"retail-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App は組み立て済みのサービス一式
type App struct {
	Router *gin.Engine
	Store  *services.ArtifactStore
}

// NewApp は設定からアーティファクトストア・予測サービス・ルーターを組み立てる
func NewApp(cfg *config.Config) (*App, error) {
	schema, err := config.LoadFeatureSchema(cfg.FeatureSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("feature schema: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	store := services.NewArtifactStore(cfg, schema, metrics)
	predictionService := services.NewPredictionService(store, metrics)
	monitoringService := services.NewMonitoringService(metrics)

	router := NewRouter(RouterOptions{
		Service:          predictionService,
		Monitoring:       monitoringService,
		Gatherer:         registry,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	})
	return &App{Router: router, Store: store}, nil
}
