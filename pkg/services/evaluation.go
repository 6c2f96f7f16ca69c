package services

import (
	"context"
	"fmt"
	"math"

	"retail-forecast-api/pkg/models"
)

// Evaluate reqで選ばれた行を推論し、目的変数の実績値と比較する。
// 実績値または予測値が欠けた行は誤差の集計から除くが、Rowsには数える。
func (s *PredictionService) Evaluate(ctx context.Context, req *models.PredictionRequest) (*models.EvaluationResponse, error) {
	rows, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	encoding, err := s.store.GetEncoding(ctx)
	if err != nil {
		return nil, err
	}
	features, target, err := BuildFeatureMatrixWithTarget(rows, encoding, s.store.Schema())
	if err != nil {
		return nil, err
	}
	predictions, err := s.runModel(ctx, features)
	if err != nil {
		return nil, err
	}

	actual, predicted := pairedValues(target, predictions)
	if len(actual) == 0 {
		return nil, errInvalidInput("no rows with a %s value to evaluate", s.store.Schema().TargetColumn)
	}

	resp := &models.EvaluationResponse{
		Rows:           features.Rows,
		Evaluated:      len(actual),
		Model:          s.store.Variant(),
		ActualMean:     calculateMean(actual),
		ActualStdDev:   calculateStandardDeviation(actual),
		PredictionMean: calculateMean(predicted),
	}
	var absSum, sqSum, errSum, pctSum float64
	pctRows := 0
	for i := range actual {
		diff := predicted[i] - actual[i]
		errSum += diff
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual[i] != 0 {
			pctSum += math.Abs(diff / actual[i])
			pctRows++
		}
	}
	n := float64(len(actual))
	resp.MAE = absSum / n
	resp.RMSE = math.Sqrt(sqSum / n)
	resp.Bias = errSum / n
	if pctRows > 0 {
		mape := 100 * pctSum / float64(pctRows)
		resp.MAPE = &mape
	}
	if r, err := pearsonCorrelation(actual, predicted); err == nil {
		resp.Correlation = &r
	}
	return resp, nil
}

// pairedValues どちらかがNaNまたは無限大の位置を除外
func pairedValues(actual, predicted []float64) ([]float64, []float64) {
	a := make([]float64, 0, len(actual))
	p := make([]float64, 0, len(actual))
	for i := range actual {
		if !isFinite(actual[i]) || !isFinite(predicted[i]) {
			continue
		}
		a = append(a, actual[i])
		p = append(p, predicted[i])
	}
	return a, p
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// pearsonCorrelation 2つのデータ系列のピアソン相関係数を計算
func pearsonCorrelation(x, y []float64) (float64, error) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, fmt.Errorf("series lengths differ or fewer than two points")
	}

	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := 0; i < len(x); i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}

	numerator := n*sumXY - sumX*sumY
	denominator := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if denominator == 0 || math.IsNaN(denominator) {
		return 0, fmt.Errorf("zero variance")
	}
	return numerator / denominator, nil
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStandardDeviation パッケージ内部用のヘルパー関数：標準偏差を計算
func calculateStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := calculateMean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}
