package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	config "retail-forecast-api/configs"
	"retail-forecast-api/pkg/logger"
	"retail-forecast-api/pkg/models"
	"retail-forecast-api/pkg/services"

	"github.com/joho/godotenv"
)

// アーティファクト（テストデータ・エンコーディング・モデル）をサーバーを起動せずに検証する
func main() {
	_ = godotenv.Load()
	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel, "text")

	schema, err := config.LoadFeatureSchema(cfg.FeatureSchemaPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("特徴量スキーマの読み込みに失敗")
	}

	store := services.NewArtifactStore(cfg, schema, nil)
	service := services.NewPredictionService(store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, store, service, os.Stdout); err != nil {
		logger.Log.WithError(err).Fatal("アーティファクト検証に失敗")
	}
}

// run アーティファクトを読み込み、サマリー・直近5行の予測・全行評価を出力する
func run(ctx context.Context, store *services.ArtifactStore, service *services.PredictionService, out io.Writer) error {
	fmt.Fprintln(out, "=== アーティファクト検証 ===")

	start := time.Now()
	if err := store.Warmup(ctx); err != nil {
		return fmt.Errorf("アーティファクトの読み込みに失敗: %w", err)
	}
	fmt.Fprintf(out, "読み込み完了: %v (model=%s)\n", time.Since(start).Round(time.Millisecond), store.Variant())

	summary, err := service.Summary(ctx)
	if err != nil {
		return fmt.Errorf("サマリー取得エラー: %w", err)
	}
	fmt.Fprintf(out, "\n--- テストデータ ---\n")
	fmt.Fprintf(out, "行数: %d\n", summary.Rows)
	fmt.Fprintf(out, "列数: %d\n", len(summary.Columns))
	fmt.Fprintf(out, "期間: %s 〜 %s\n", deref(summary.DateMin), deref(summary.DateMax))

	limit := 5
	prediction, err := service.Predict(ctx, &models.PredictionRequest{Limit: &limit})
	if err != nil {
		return fmt.Errorf("予測エラー: %w", err)
	}
	fmt.Fprintf(out, "\n--- 直近%d行の予測 ---\n", prediction.Rows)
	for i, p := range prediction.Predictions {
		fmt.Fprintf(out, "%d: %.3f\n", i+1, p)
	}

	evaluation, err := service.Evaluate(ctx, &models.PredictionRequest{})
	if err != nil {
		logger.Log.WithError(err).Warn("評価をスキップ")
	} else {
		fmt.Fprintf(out, "\n--- 全行評価 (%d/%d行) ---\n", evaluation.Evaluated, evaluation.Rows)
		fmt.Fprintf(out, "MAE: %.3f  RMSE: %.3f  Bias: %.3f\n", evaluation.MAE, evaluation.RMSE, evaluation.Bias)
	}

	fmt.Fprintln(out, "\n=== 検証完了 ===")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
