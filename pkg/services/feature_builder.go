package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	config "retail-forecast-api/configs"
)

// EncodingMapping カテゴリ列 -> カテゴリ値 -> 数値コード の対応表
type EncodingMapping map[string]map[string]float64

// FeatureMatrix エンコード済みのモデル入力。Valuesは行優先で
// len(Values) == Rows*len(Columns)。欠損セルはNaN。
type FeatureMatrix struct {
	Columns []string
	Rows    int
	Values  []float64
}

// NumColumns 列数を返す
func (m *FeatureMatrix) NumColumns() int { return len(m.Columns) }

// Row i行目のビューを返す
func (m *FeatureMatrix) Row(i int) []float64 {
	w := len(m.Columns)
	return m.Values[i*w : (i+1)*w]
}

// BuildFeatureMatrix frameから推論用の特徴量行列を作成する。
// エンコードの前に必要な列をすべて確認し、不足はMissingColumnとして返す。
func BuildFeatureMatrix(frame *Frame, encoding EncodingMapping, schema *config.FeatureSchema) (*FeatureMatrix, error) {
	if err := checkColumns(frame, schema); err != nil {
		return nil, err
	}

	cols := schema.FeatureColumns
	m := &FeatureMatrix{
		Columns: append([]string(nil), cols...),
		Rows:    frame.Len(),
		Values:  make([]float64, frame.Len()*len(cols)),
	}
	for i, row := range frame.Rows {
		out := m.Row(i)
		for j, col := range cols {
			v, err := featureValue(row, col, encoding, schema)
			if err != nil {
				err.Message = fmt.Sprintf("row %d: %s", i, err.Message)
				return nil, err
			}
			out[j] = v
		}
	}
	return m, nil
}

// BuildFeatureMatrixWithTarget 評価用。特徴量行列に加えて目的変数の列も取り出す。
// 目的変数がnullの行はNaNになる。
func BuildFeatureMatrixWithTarget(frame *Frame, encoding EncodingMapping, schema *config.FeatureSchema) (*FeatureMatrix, []float64, error) {
	if !frame.HasColumn(schema.TargetColumn) {
		return nil, nil, errMissingColumn(schema.TargetColumn)
	}
	m, err := BuildFeatureMatrix(frame, encoding, schema)
	if err != nil {
		return nil, nil, err
	}
	target := make([]float64, frame.Len())
	for i, row := range frame.Rows {
		v, err := toFloat(row[schema.TargetColumn])
		if err != nil {
			return nil, nil, errInvalidInput("row %d: column %s: %v", i, schema.TargetColumn, err)
		}
		target[i] = v
	}
	return m, target, nil
}

// checkColumns 宣言順で最初に見つかった不足列を返す。
// 日付列から導出できる特徴量は不足とみなさない。
func checkColumns(frame *Frame, schema *config.FeatureSchema) error {
	for _, col := range schema.FeatureColumns {
		derivable := schema.IsDateFeature(col)
		if !frame.HasColumn(col) && !(derivable && frame.HasColumn(schema.DateColumn)) {
			return errMissingColumn(col)
		}
		for i, row := range frame.Rows {
			if _, ok := row[col]; ok {
				continue
			}
			if _, ok := row[schema.DateColumn]; derivable && ok {
				continue
			}
			err := errMissingColumn(col)
			err.Message = fmt.Sprintf("row %d: %s", i, err.Message)
			return err
		}
	}
	return nil
}

func featureValue(row Row, col string, encoding EncodingMapping, schema *config.FeatureSchema) (float64, *Error) {
	raw, ok := row[col]
	if !ok {
		return dateFeature(row[schema.DateColumn], col), nil
	}
	if codes, ok := encoding[col]; ok {
		return encodeCategory(col, raw, codes)
	}
	v, err := toFloat(raw)
	if err != nil {
		return 0, errInvalidInput("column %s: %v", col, err)
	}
	return v, nil
}

func encodeCategory(col string, raw interface{}, codes map[string]float64) (float64, *Error) {
	if raw == nil {
		return math.NaN(), nil
	}
	key := categoryKey(raw)
	code, ok := codes[key]
	if !ok {
		return 0, errInvalidInput("column %s: unknown category %q", col, key)
	}
	return code, nil
}

// categoryKey セルの値をエンコーディングファイルのカテゴリ表記に合わせる。
// 整数値のfloatは小数部を落とす（3.0は"3"に一致）。
func categoryKey(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(DateLayout)
	}
	return fmt.Sprint(v)
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func dateFeature(v interface{}, name string) float64 {
	t, ok := v.(time.Time)
	if !ok {
		return math.NaN()
	}
	switch name {
	case "year":
		return float64(t.Year())
	case "month":
		return float64(t.Month())
	case "day":
		return float64(t.Day())
	case "day_of_week":
		// 月曜日=0
		return float64((int(t.Weekday()) + 6) % 7)
	case "week_of_year":
		_, w := t.ISOWeek()
		return float64(w)
	case "day_of_year":
		return float64(t.YearDay())
	}
	return math.NaN()
}
