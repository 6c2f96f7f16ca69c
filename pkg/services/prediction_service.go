package services

import (
	"context"
	"fmt"

	config "retail-forecast-api/configs"
	"retail-forecast-api/pkg/logger"
	"retail-forecast-api/pkg/models"

	"github.com/sirupsen/logrus"
)

// ArtifactSource キャッシュ済みアーティファクトの取得元。*ArtifactStoreが実装する
type ArtifactSource interface {
	GetDataset(ctx context.Context) (*Frame, error)
	GetEncoding(ctx context.Context) (EncodingMapping, error)
	GetModel(ctx context.Context) (Model, error)
	Variant() string
	Schema() *config.FeatureSchema
}

// PredictionService 行の決定 -> 特徴量 -> モデル -> レスポンス の流れを制御する予測サービス
type PredictionService struct {
	store    ArtifactSource
	resolver *RequestResolver
	metrics  *Metrics
}

// NewPredictionService 新しい予測サービスを作成
func NewPredictionService(store ArtifactSource, metrics *Metrics) *PredictionService {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &PredictionService{
		store:    store,
		resolver: NewRequestResolver(store, store.Schema().DateColumn),
		metrics:  metrics,
	}
}

// Info ルートエンドポイント用のサービス情報
func (s *PredictionService) Info() models.RootResponse {
	return models.RootResponse{
		Message: "Welcome to the Retail Demand Forecasting API",
		Docs:    "/docs",
		Model:   s.store.Variant(),
	}
}

// Predict reqで選ばれた行を推論する。
// レスポンスのRowsは常に予測値の数と等しく、順序は行の順序に従う。
func (s *PredictionService) Predict(ctx context.Context, req *models.PredictionRequest) (*models.PredictionResponse, error) {
	resp, err := s.predict(ctx, req)
	s.metrics.Predictions.WithLabelValues(s.store.Variant(), outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.metrics.PredictedRows.Observe(float64(resp.Rows))
	return resp, nil
}

func (s *PredictionService) predict(ctx context.Context, req *models.PredictionRequest) (*models.PredictionResponse, error) {
	rows, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	encoding, err := s.store.GetEncoding(ctx)
	if err != nil {
		return nil, err
	}
	features, err := BuildFeatureMatrix(rows, encoding, s.store.Schema())
	if err != nil {
		return nil, err
	}
	predictions, err := s.runModel(ctx, features)
	if err != nil {
		return nil, err
	}

	return &models.PredictionResponse{
		Rows:        features.Rows,
		Model:       s.store.Variant(),
		Predictions: predictions,
	}, nil
}

// runModel 設定されたモデルで推論し、各行にちょうど1つの予測値があることを確認する
func (s *PredictionService) runModel(ctx context.Context, features *FeatureMatrix) ([]float64, error) {
	model, err := s.store.GetModel(ctx)
	if err != nil {
		return nil, err
	}
	predictions, err := score(model, features)
	if err != nil {
		return nil, errModelFailure(s.store.Variant(), err)
	}
	if len(predictions) != features.Rows {
		return nil, errModelFailure(s.store.Variant(),
			fmt.Errorf("returned %d predictions for %d rows", len(predictions), features.Rows))
	}
	return predictions, nil
}

// score モデルのpanicをエラーに変換
func score(model Model, features *FeatureMatrix) (predictions []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during prediction: %v", r)
		}
	}()
	return model.Predict(features)
}

// Summary 参照データセットの概要を返す。読み込みエラーはそのまま返す
func (s *PredictionService) Summary(ctx context.Context) (*models.SummaryResponse, error) {
	dataset, err := s.store.GetDataset(ctx)
	if err != nil {
		return nil, err
	}
	schema := s.store.Schema()
	summary := &models.SummaryResponse{
		Rows:           dataset.Len(),
		Columns:        append([]string{}, dataset.Columns...),
		FeatureColumns: append([]string{}, schema.FeatureColumns...),
		TargetColumn:   schema.TargetColumn,
	}
	for i := 0; i < dataset.Len(); i++ {
		if d := dataset.Date(i); d != nil {
			summary.DateMin = FormatDate(*d)
			break
		}
	}
	for i := dataset.Len() - 1; i >= 0; i-- {
		if d := dataset.Date(i); d != nil {
			summary.DateMax = FormatDate(*d)
			break
		}
	}
	return summary, nil
}

// Sample 日付範囲内のデータセット末尾limit行を返す。
// Predictと異なり寛容で、解析できない日付や読み込みエラーはログに残して無視する
// （読み込みエラー時は空のサンプル）。
func (s *PredictionService) Sample(ctx context.Context, limit int, startDate, endDate string) *models.SampleResponse {
	empty := &models.SampleResponse{Rows: 0, Data: []models.Record{}}
	log := logger.WithFields(logrus.Fields{"op": "sample", "start_date": startDate, "end_date": endDate})

	dataset, err := s.store.GetDataset(ctx)
	if err != nil {
		log.WithError(err).Error("[sample] dataset unavailable, returning empty sample")
		return empty
	}

	start, err := ParseDate(startDate)
	if err != nil {
		log.WithError(err).Warn("[sample] ignoring start_date")
		start = nil
	}
	end, err := ParseDate(endDate)
	if err != nil {
		log.WithError(err).Warn("[sample] ignoring end_date")
		end = nil
	}

	sample := FilterByDate(dataset, start, end).Tail(limit)
	return &models.SampleResponse{Rows: sample.Len(), Data: FrameToRecords(sample)}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case KindOf(err).IsClient():
		return "client_error"
	default:
		return "server_error"
	}
}
