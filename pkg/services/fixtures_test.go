package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	config "retail-forecast-api/configs"
)

func day(d int) time.Time {
	return time.Date(2023, time.January, d, 0, 0, 0, 0, time.UTC)
}

// featureRecord is a complete raw record for the default schema.
func featureRecord(date string, unitsOrdered float64) map[string]interface{} {
	return map[string]interface{}{
		"date_id":            date,
		"store_id":           "S001",
		"product_id":         "P0001",
		"category":           "Groceries",
		"region":             "North",
		"inventory_level":    231.0,
		"units_ordered":      unitsOrdered,
		"price":              33.5,
		"discount":           20.0,
		"weather_condition":  "Rainy",
		"holiday_promotion":  0.0,
		"competitor_pricing": 29.69,
		"seasonality":        "Autumn",
		"units_sold":         unitsOrdered * 2,
	}
}

func testEncoding() EncodingMapping {
	return EncodingMapping{
		"store_id":          {"S001": 120.5, "S002": 98.25},
		"product_id":        {"P0001": 130},
		"category":          {"Groceries": 140, "Toys": 90},
		"region":            {"North": 135},
		"weather_condition": {"Rainy": 132, "Sunny": 128},
		"seasonality":       {"Autumn": 138},
	}
}

// referenceFrame is a normalized dataset with one row per day of January
// 2023 from 1 to days. units_ordered equals the day number.
func referenceFrame(days int) *Frame {
	records := make([]map[string]interface{}, 0, days)
	for d := 1; d <= days; d++ {
		records = append(records, featureRecord(day(d).Format(DateLayout), float64(d)))
	}
	f, err := RecordsToFrame(records, "date_id")
	if err != nil {
		panic(err)
	}
	normalizeDates(f)
	return f
}

// columnModel predicts the value of one feature column, which makes row
// order visible in the output.
type columnModel struct {
	column string
}

func (m columnModel) Predict(fm *FeatureMatrix) ([]float64, error) {
	idx := -1
	for i, c := range fm.Columns {
		if c == m.column {
			idx = i
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %s not in matrix", m.column)
	}
	out := make([]float64, fm.Rows)
	for i := range out {
		out[i] = fm.Row(i)[idx]
	}
	return out, nil
}

type funcModel func(fm *FeatureMatrix) ([]float64, error)

func (f funcModel) Predict(fm *FeatureMatrix) ([]float64, error) { return f(fm) }

// fakeStore is an in-memory ArtifactSource.
type fakeStore struct {
	dataset     *Frame
	datasetErr  error
	encoding    EncodingMapping
	model       Model
	modelErr    error
	variant     string
	schema      *config.FeatureSchema
	datasetHits int32
}

func newFakeStore(dataset *Frame) *fakeStore {
	return &fakeStore{
		dataset:  dataset,
		encoding: testEncoding(),
		model:    columnModel{column: "units_ordered"},
		variant:  "lightgbm",
		schema:   config.DefaultFeatureSchema(),
	}
}

func (s *fakeStore) GetDataset(context.Context) (*Frame, error) {
	atomic.AddInt32(&s.datasetHits, 1)
	if s.datasetErr != nil {
		return nil, s.datasetErr
	}
	return s.dataset, nil
}

func (s *fakeStore) GetEncoding(context.Context) (EncodingMapping, error) {
	return s.encoding, nil
}

func (s *fakeStore) GetModel(context.Context) (Model, error) {
	if s.modelErr != nil {
		return nil, s.modelErr
	}
	return s.model, nil
}

func (s *fakeStore) Variant() string                { return s.variant }
func (s *fakeStore) Schema() *config.FeatureSchema { return s.schema }

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
