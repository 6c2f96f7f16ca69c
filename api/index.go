package handler

import (
	"net/http"
	"sync"

	config "retail-forecast-api/configs"
	"retail-forecast-api/pkg/handlers"
	"retail-forecast-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
// アーティファクトはインスタンスの生存期間中キャッシュされます。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		// .envファイルはプラットフォームの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()
		logger.Init(cfg.LogLevel, cfg.LogFormat)
		gin.SetMode(gin.ReleaseMode)

		a, err := handlers.NewApp(cfg)
		if err != nil {
			initErr = err
			logger.Log.WithError(err).Error("[setupApp] initialization failed")
			return
		}
		app = a.Router
		logger.Log.Info("[setupApp] Gin application initialized")
	})
	return app, initErr
}

// Handler はサーバーレス関数のエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	engine, err := setupApp()
	if err != nil {
		http.Error(w, "service initialization failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	engine.ServeHTTP(w, r)
}
