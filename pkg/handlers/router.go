package handlers

import (
	"net/http"
	"sort"

	"retail-forecast-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions はルーター構築に必要な依存関係
type RouterOptions struct {
	Service          *services.PredictionService
	Monitoring       *services.MonitoringService
	Gatherer         prometheus.Gatherer // nilの場合 /metrics は登録しない
	CORSAllowOrigins []string            // 空の場合は全オリジンを許可
}

// NewRouter はAPIのルーティングを設定したGinエンジンを返す
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// ミドルウェアの登録
	if opts.Monitoring != nil {
		r.Use(opts.Monitoring.LoggingMiddleware())
	}
	corsConfig := cors.DefaultConfig()
	if len(opts.CORSAllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.CORSAllowOrigins
	}
	r.Use(cors.New(corsConfig))

	forecastHandler := NewForecastHandler(opts.Service)

	r.GET("/", forecastHandler.Root)
	r.GET("/health", HealthCheck)
	r.GET("/docs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"routes": routeList(r)})
	})

	data := r.Group("/data")
	{
		data.GET("/summary", forecastHandler.GetSummary)
		data.GET("/sample", forecastHandler.GetSample)
	}
	r.POST("/predict", forecastHandler.Predict)
	r.POST("/evaluate", forecastHandler.Evaluate)

	if opts.Monitoring != nil {
		monitoringHandler := NewMonitoringHandler(opts.Monitoring)
		r.GET("/monitoring/logs", monitoringHandler.GetLogs)
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

func routeList(r *gin.Engine) []gin.H {
	routes := r.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	out := make([]gin.H, 0, len(routes))
	for _, rt := range routes {
		out = append(out, gin.H{"method": rt.Method, "path": rt.Path})
	}
	return out
}
