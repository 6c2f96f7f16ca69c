package models

// Record は1行分の特徴量（列名 -> 値）
type Record = map[string]interface{}

// PredictionRequest は /predict のリクエストボディ
// records が存在する場合は日付・件数の指定より常に優先される
type PredictionRequest struct {
	Limit     *int     `json:"limit,omitempty"`      // テストデータから取得する末尾の行数
	StartDate *string  `json:"start_date,omitempty"` // 開始日（この日を含む）
	EndDate   *string  `json:"end_date,omitempty"`   // 終了日（この日を含む）
	Records   []Record `json:"records"`              // 呼び出し側が指定する特徴量行（nullは未指定扱い）
}

// HasRecords reports whether the caller sent a records field at all, even an
// empty one.
func (r *PredictionRequest) HasRecords() bool {
	return r.Records != nil
}

// PredictionResponse は /predict のレスポンス
type PredictionResponse struct {
	Rows        int       `json:"rows"`
	Model       string    `json:"model"`
	Predictions []float64 `json:"predictions"`
}

// EvaluationResponse は /evaluate のレスポンス
// 目的変数が欠損している行は評価対象外
type EvaluationResponse struct {
	Rows      int     `json:"rows"`
	Evaluated int     `json:"evaluated"`
	Model     string  `json:"model"`
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
	// 実績0の行を除く。該当行がなければnull
	MAPE *float64 `json:"mape"`
	// 予測 - 実績 の平均
	Bias float64 `json:"bias"`
	// どちらかの分散が0ならnull
	Correlation    *float64 `json:"correlation"`
	ActualMean     float64  `json:"actual_mean"`
	ActualStdDev   float64  `json:"actual_std_dev"`
	PredictionMean float64  `json:"prediction_mean"`
}

// RootResponse は / のレスポンス
type RootResponse struct {
	Message string `json:"message"`
	Docs    string `json:"docs"`
	Model   string `json:"model"`
}

// HealthResponse は /health のレスポンス
type HealthResponse struct {
	Status string `json:"status"`
}

// SummaryResponse は /data/summary のレスポンス
type SummaryResponse struct {
	Rows           int      `json:"rows"`
	Columns        []string `json:"columns"`
	DateMin        *string  `json:"date_min"` // YYYY-MM-DD または null
	DateMax        *string  `json:"date_max"`
	FeatureColumns []string `json:"feature_columns"`
	TargetColumn   string   `json:"target_column"`
}

// SampleResponse は /data/sample のレスポンス
type SampleResponse struct {
	Rows int      `json:"rows"`
	Data []Record `json:"data"`
}

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}
