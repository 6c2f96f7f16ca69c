package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	config "retail-forecast-api/configs"
	"retail-forecast-api/pkg/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	artifactDataset  = "dataset"
	artifactEncoding = "encoding"
	artifactModel    = "model"
)

// StoreOptions アーティファクトの保存場所
type StoreOptions struct {
	DatasetPath  string
	EncodingPath string
	ModelPaths   map[ModelVariant]string
	// Variant 設定されたMODEL_VARIANT。最初のモデル取得時に検証する
	Variant string
	Schema  *config.FeatureSchema
}

// Loaders ストレージからアーティファクトを読み込む関数群。
// ファイルがない場合はArtifactMissingを返すこと。
type Loaders struct {
	Dataset  func(path, dateColumn string) (*Frame, error)
	Encoding func(path string) (EncodingMapping, error)
	Model    func(variant ModelVariant, path string, numFeatures int) (Model, error)
}

// DefaultLoaders データセット（parquet・xlsx・csv）、JSONのエンコーディング、
// leaves互換のモデルファイルを読み込む標準のローダー
func DefaultLoaders() Loaders {
	return Loaders{
		Dataset: func(path, dateColumn string) (*Frame, error) {
			if err := ensureArtifact(path); err != nil {
				return nil, err
			}
			return readDatasetFile(path, dateColumn)
		},
		Encoding: loadEncodingFile,
		Model: func(variant ModelVariant, path string, numFeatures int) (Model, error) {
			if err := ensureArtifact(path); err != nil {
				return nil, err
			}
			return LoadModel(variant, path, numFeatures)
		},
	}
}

// ArtifactStore 参照データセット・エンコーディング・モデルを保持する。
// それぞれプロセス内で一度だけ読み込み、以降は読み取り専用で共有する。
// 読み込みの失敗はキャッシュしない。
type ArtifactStore struct {
	opts    StoreOptions
	loaders Loaders
	metrics *Metrics

	group singleflight.Group

	mu       sync.RWMutex
	dataset  *Frame
	encoding EncodingMapping
	model    Model
}

// NewArtifactStore 設定から新しいアーティファクトストアを作成
func NewArtifactStore(cfg *config.Config, schema *config.FeatureSchema, metrics *Metrics) *ArtifactStore {
	opts := StoreOptions{
		DatasetPath:  cfg.TestDataPath,
		EncodingPath: cfg.EncodingPath,
		ModelPaths: map[ModelVariant]string{
			VariantLightGBM: cfg.LightGBMPath,
			VariantXGBoost:  cfg.XGBoostPath,
		},
		Variant: cfg.ModelVariant,
		Schema:  schema,
	}
	return NewArtifactStoreWithLoaders(opts, DefaultLoaders(), metrics)
}

// NewArtifactStoreWithLoaders 任意のローダーでアーティファクトストアを作成
func NewArtifactStoreWithLoaders(opts StoreOptions, loaders Loaders, metrics *Metrics) *ArtifactStore {
	if opts.Schema == nil {
		opts.Schema = config.DefaultFeatureSchema()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &ArtifactStore{opts: opts, loaders: loaders, metrics: metrics}
}

// Variant 設定されたモデル名を返す
func (s *ArtifactStore) Variant() string { return s.opts.Variant }

// Schema モデルの学習に使った特徴量スキーマを返す
func (s *ArtifactStore) Schema() *config.FeatureSchema { return s.opts.Schema }

// GetDataset 日付昇順に並んだ参照データセットを返す
func (s *ArtifactStore) GetDataset(ctx context.Context) (*Frame, error) {
	v, err := s.getOrLoad(ctx, artifactDataset,
		func() (interface{}, bool) { return s.dataset, s.dataset != nil },
		func() (interface{}, error) {
			f, err := s.loaders.Dataset(s.opts.DatasetPath, s.opts.Schema.DateColumn)
			if err != nil {
				return nil, err
			}
			normalizeDates(f)
			return f, nil
		},
		func(v interface{}) { s.dataset = v.(*Frame) },
	)
	if err != nil {
		return nil, err
	}
	return v.(*Frame), nil
}

// GetEncoding カテゴリのエンコーディングを返す
func (s *ArtifactStore) GetEncoding(ctx context.Context) (EncodingMapping, error) {
	v, err := s.getOrLoad(ctx, artifactEncoding,
		func() (interface{}, bool) { return s.encoding, s.encoding != nil },
		func() (interface{}, error) { return s.loaders.Encoding(s.opts.EncodingPath) },
		func(v interface{}) { s.encoding = v.(EncodingMapping) },
	)
	if err != nil {
		return nil, err
	}
	return v.(EncodingMapping), nil
}

// GetModel 設定されたモデルを返す。
// 未対応のモデル名は呼び出しのたびにUnsupportedModelになる。
func (s *ArtifactStore) GetModel(ctx context.Context) (Model, error) {
	variant, err := ParseModelVariant(s.opts.Variant)
	if err != nil {
		return nil, err
	}
	v, err := s.getOrLoad(ctx, artifactModel,
		func() (interface{}, bool) { return s.model, s.model != nil },
		func() (interface{}, error) {
			return s.loaders.Model(variant, s.opts.ModelPaths[variant], len(s.opts.Schema.FeatureColumns))
		},
		func(v interface{}) { s.model = v.(Model) },
	)
	if err != nil {
		return nil, err
	}
	return v.(Model), nil
}

// Warmup すべてのアーティファクトを並行に読み込む
func (s *ArtifactStore) Warmup(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := s.GetDataset(ctx); return err })
	g.Go(func() error { _, err := s.GetEncoding(ctx); return err })
	g.Go(func() error { _, err := s.GetModel(ctx); return err })
	return g.Wait()
}

// getOrLoad キャッシュ済みのアーティファクトを返すか、keyごとのsingleflight内でloadを実行する。
// flight内でもキャッシュを再確認し、二重読み込みを防ぐ。
// ctxは待機のみを制限し、待つのをやめても読み込みは完了してキャッシュされる。
func (s *ArtifactStore) getOrLoad(
	ctx context.Context,
	key string,
	cached func() (interface{}, bool),
	load func() (interface{}, error),
	store func(interface{}),
) (interface{}, error) {
	s.mu.RLock()
	v, ok := cached()
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		s.mu.RLock()
		v, ok := cached()
		s.mu.RUnlock()
		if ok {
			return v, nil
		}

		log := logger.WithField("artifact", key)
		v, err := load()
		if err != nil {
			log.WithError(err).Error("[artifact] load failed")
			s.metrics.ArtifactLoadErrors.WithLabelValues(key).Inc()
			return nil, err
		}

		s.mu.Lock()
		store(v)
		s.mu.Unlock()
		s.metrics.ArtifactLoads.WithLabelValues(key).Inc()
		log.Info("[artifact] loaded")
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// ensureArtifact pathが存在しなければArtifactMissingを返す
func ensureArtifact(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errArtifactMissing(path, nil)
		}
		return fmt.Errorf("stat artifact %s: %w", path, err)
	}
	return nil
}

func loadEncodingFile(path string) (EncodingMapping, error) {
	if err := ensureArtifact(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mapping EncodingMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("parse encoding mapping %s: %w", path, err)
	}
	if mapping == nil {
		mapping = EncodingMapping{}
	}
	return mapping, nil
}
