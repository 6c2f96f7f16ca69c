package services

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dmitryikh/leaves"
)

// ModelVariant 対応している学習済みモデルの種類
type ModelVariant string

const (
	// VariantLightGBM CPUで学習したLightGBM回帰モデル
	VariantLightGBM ModelVariant = "lightgbm"
	// VariantXGBoost GPUで学習したXGBoost回帰モデル（推論はCPU）
	VariantXGBoost ModelVariant = "xgboost"
)

// SupportedVariants MODEL_VARIANTに指定できる値
var SupportedVariants = []ModelVariant{VariantLightGBM, VariantXGBoost}

// ParseModelVariant 設定されたモデル名を検証
func ParseModelVariant(s string) (ModelVariant, error) {
	v := ModelVariant(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SupportedVariants {
		if v == known {
			return v, nil
		}
	}
	return "", errUnsupportedModel(s)
}

// Model 特徴量行列から予測値を計算する。
// 実装は読み込み後は状態を持たず、並行に呼び出してよい。
type Model interface {
	Predict(m *FeatureMatrix) ([]float64, error)
}

// ensembleModel leavesの決定木アンサンブルをModelとして扱う。
// leavesはCPU推論のみのため、GPUで学習したモデルもCPUで推論する。
type ensembleModel struct {
	variant  ModelVariant
	ensemble *leaves.Ensemble
	threads  int
}

// LoadModel pathからモデルファイルを読み込む。形式は拡張子で判断する
// （LightGBMはテキストまたはJSONダンプ、XGBoostはバイナリ）。
// numFeaturesより多くの列を参照するモデルはエラーにする。0以下なら検査しない。
func LoadModel(variant ModelVariant, path string, numFeatures int) (Model, error) {
	var (
		ens *leaves.Ensemble
		err error
	)
	switch variant {
	case VariantLightGBM:
		if strings.EqualFold(filepath.Ext(path), ".json") {
			ens, err = loadLightGBMJSON(path)
		} else {
			ens, err = leaves.LGEnsembleFromFile(path, true)
		}
	case VariantXGBoost:
		// 回帰では生の出力（base score込み）をそのまま使う
		ens, err = leaves.XGEnsembleFromFile(path, false)
	default:
		return nil, errUnsupportedModel(string(variant))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s model from %s: %w", variant, path, err)
	}
	if ens.NOutputGroups() != 1 {
		return nil, fmt.Errorf("load %s model: expected a single output group, got %d", variant, ens.NOutputGroups())
	}
	if numFeatures > 0 && ens.NFeatures() > numFeatures {
		return nil, fmt.Errorf("load %s model: booster expects %d features, schema lists %d", variant, ens.NFeatures(), numFeatures)
	}
	return &ensembleModel{variant: variant, ensemble: ens, threads: runtime.NumCPU()}, nil
}

func loadLightGBMJSON(path string) (*leaves.Ensemble, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// JSONダンプには目的関数が含まれないため変換なしで読み込む
	return leaves.LGEnsembleFromJSON(f, false)
}

func (m *ensembleModel) Predict(fm *FeatureMatrix) ([]float64, error) {
	if fm.Rows == 0 {
		return []float64{}, nil
	}
	if n := m.ensemble.NFeatures(); n > fm.NumColumns() {
		return nil, fmt.Errorf("%s expects %d features, matrix has %d", m.variant, n, fm.NumColumns())
	}
	out := make([]float64, fm.Rows)
	if err := m.ensemble.PredictDense(fm.Values, fm.Rows, fm.NumColumns(), out, 0, m.threads); err != nil {
		return nil, err
	}
	return out, nil
}
