package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"retail-forecast-api/pkg/models"
	"retail-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

const (
	defaultSampleLimit  = 100
	maxSampleLimit      = 1000
	defaultPredictLimit = 200
	maxPredictLimit     = 2000
)

// ForecastHandler 需要予測APIのハンドラー
type ForecastHandler struct {
	service *services.PredictionService
}

// NewForecastHandler 新しい需要予測ハンドラーを作成
func NewForecastHandler(service *services.PredictionService) *ForecastHandler {
	return &ForecastHandler{service: service}
}

// Root サービス情報とアクティブなモデルを返す
func (h *ForecastHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Info())
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}

// GetSummary テストデータの行数・列・日付範囲を返す
func (h *ForecastHandler) GetSummary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetSample テストデータのサンプルを返す
// 不正な日付は無視される（/predict とは異なり400を返さない）
func (h *ForecastHandler) GetSample(c *gin.Context) {
	limit := defaultSampleLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:  string(services.KindInvalidInput),
				Detail: "limit must be a positive integer: " + limitStr,
			})
			return
		}
		if n > maxSampleLimit {
			n = maxSampleLimit
		}
		limit = n
	}

	sample := h.service.Sample(c.Request.Context(), limit, c.Query("start_date"), c.Query("end_date"))
	c.JSON(http.StatusOK, sample)
}

// Predict 需要予測を実行
func (h *ForecastHandler) Predict(c *gin.Context) {
	request, ok := bindPredictionRequest(c)
	if !ok {
		return
	}

	response, err := h.service.Predict(c.Request.Context(), request)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Evaluate 予測値と実績値（units_sold）を比較して誤差指標を返す
func (h *ForecastHandler) Evaluate(c *gin.Context) {
	request, ok := bindPredictionRequest(c)
	if !ok {
		return
	}

	response, err := h.service.Evaluate(c.Request.Context(), request)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// bindPredictionRequest はボディをバインドし、limitの既定値と範囲を適用する
// 失敗時は400を書き込んで false を返す
func bindPredictionRequest(c *gin.Context) (*models.PredictionRequest, bool) {
	var request models.PredictionRequest

	// リクエストボディをバインド（空ボディは {} と同じ扱い）
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:  string(services.KindInvalidInput),
			Detail: "invalid request body: " + err.Error(),
		})
		return nil, false
	}

	// デフォルト値の設定
	if request.Limit == nil {
		limit := defaultPredictLimit
		request.Limit = &limit
	}
	if *request.Limit < 1 || *request.Limit > maxPredictLimit {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:  string(services.KindInvalidInput),
			Detail: "limit must be between 1 and " + strconv.Itoa(maxPredictLimit),
		})
		return nil, false
	}
	return &request, true
}
