package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FeatureSchema は学習済みモデルが期待する入力列の定義
type FeatureSchema struct {
	// FeatureColumns is the exact column list the model was trained on, in order.
	FeatureColumns []string `yaml:"feature_columns"`
	TargetColumn   string   `yaml:"target_column"`
	DateColumn     string   `yaml:"date_column"`
	// DateFeatures are calendar features derived from DateColumn when the
	// input does not carry them already.
	DateFeatures []string `yaml:"date_features"`
}

// DefaultFeatureSchema はスキーマファイルが指定されない場合の列定義を返す
func DefaultFeatureSchema() *FeatureSchema {
	return &FeatureSchema{
		FeatureColumns: []string{
			"store_id",
			"product_id",
			"category",
			"region",
			"inventory_level",
			"units_ordered",
			"price",
			"discount",
			"weather_condition",
			"holiday_promotion",
			"competitor_pricing",
			"seasonality",
			"year",
			"month",
			"day",
			"day_of_week",
		},
		TargetColumn: "units_sold",
		DateColumn:   "date_id",
		DateFeatures: []string{"year", "month", "day", "day_of_week"},
	}
}

// LoadFeatureSchema はYAMLファイルから特徴量スキーマを読み込む。
// pathが空の場合は組み込みのスキーマを返す。
func LoadFeatureSchema(path string) (*FeatureSchema, error) {
	if path == "" {
		return DefaultFeatureSchema(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("特徴量スキーマファイルの読み込みに失敗: %w", err)
	}

	var schema FeatureSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}

	defaults := DefaultFeatureSchema()
	if schema.TargetColumn == "" {
		schema.TargetColumn = defaults.TargetColumn
	}
	if schema.DateColumn == "" {
		schema.DateColumn = defaults.DateColumn
	}
	if schema.DateFeatures == nil {
		schema.DateFeatures = defaults.DateFeatures
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// Validate checks the schema is usable for building feature matrices
func (s *FeatureSchema) Validate() error {
	if len(s.FeatureColumns) == 0 {
		return fmt.Errorf("feature schema: feature_columns is empty")
	}
	seen := make(map[string]bool, len(s.FeatureColumns))
	for _, col := range s.FeatureColumns {
		if col == "" {
			return fmt.Errorf("feature schema: blank feature column")
		}
		if seen[col] {
			return fmt.Errorf("feature schema: duplicate feature column %q", col)
		}
		seen[col] = true
	}
	for _, f := range s.DateFeatures {
		if !IsKnownDateFeature(f) {
			return fmt.Errorf("feature schema: unknown date feature %q", f)
		}
	}
	return nil
}

// IsDateFeature reports whether name is derived from the date column
func (s *FeatureSchema) IsDateFeature(name string) bool {
	for _, f := range s.DateFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// IsKnownDateFeature reports whether name is a supported calendar feature
func IsKnownDateFeature(name string) bool {
	switch name {
	case "year", "month", "day", "day_of_week", "week_of_year", "day_of_year":
		return true
	}
	return false
}
