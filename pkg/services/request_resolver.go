package services

import (
	"context"
	"time"

	"retail-forecast-api/pkg/models"
)

// datasetSource リゾルバーが参照するアーティファクトストアの一部
type datasetSource interface {
	GetDataset(ctx context.Context) (*Frame, error)
}

// RequestResolver 予測リクエストで推論する行を決定する
type RequestResolver struct {
	source     datasetSource
	dateColumn string
}

// NewRequestResolver 新しいリクエストリゾルバーを作成
func NewRequestResolver(source datasetSource, dateColumn string) *RequestResolver {
	return &RequestResolver{source: source, dateColumn: dateColumn}
}

// Resolve 推論対象の行を返す。recordsが指定されていれば常にそれを使い、日付とlimitは無視する。
// 指定がなければ参照データセットを日付範囲（両端を含む）で絞り込み、
// 直近limit行を昇順で返す。
func (r *RequestResolver) Resolve(ctx context.Context, req *models.PredictionRequest) (*Frame, error) {
	if req.HasRecords() {
		return RecordsToFrame(req.Records, r.dateColumn)
	}

	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	if req.Limit != nil && *req.Limit < 1 {
		return nil, errInvalidInput("limit must be >= 1, got %d", *req.Limit)
	}

	dataset, err := r.source.GetDataset(ctx)
	if err != nil {
		return nil, err
	}
	rows := FilterByDate(dataset, start, end)
	if req.Limit != nil {
		rows = rows.Tail(*req.Limit)
	}
	if rows.Len() == 0 {
		return nil, errNoRows()
	}
	return rows, nil
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return ParseDate(*s)
}
