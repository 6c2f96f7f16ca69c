package services

import (
	"math"
	"sort"
	"time"
)

// Row 列名をキーとする1行分のレコード
type Row map[string]interface{}

// Frame 順序付きの表形式データ。行は列を省略でき、省略されたセルはnilとして読まれる。
// アーティファクトストアが返すFrameは共有されるため読み取り専用として扱うこと。
type Frame struct {
	Columns    []string
	Rows       []Row
	DateColumn string
}

// Len 行数を返す
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// HasColumn 指定した列が存在するか
func (f *Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Date i行目の日付を返す。日付がなければnil
func (f *Frame) Date(i int) *time.Time {
	if f.DateColumn == "" {
		return nil
	}
	if t, ok := f.Rows[i][f.DateColumn].(time.Time); ok {
		return &t
	}
	return nil
}

// slice fと行を共有するFrameを返す。行は読み込み後に変更されない
func (f *Frame) slice(rows []Row) *Frame {
	return &Frame{Columns: f.Columns, Rows: rows, DateColumn: f.DateColumn}
}

// Tail 末尾n行を順序を保って返す。n <= 0 または n >= Len の場合は全行
func (f *Frame) Tail(n int) *Frame {
	if n <= 0 || n >= len(f.Rows) {
		return f.slice(f.Rows)
	}
	return f.slice(f.Rows[len(f.Rows)-n:])
}

// FilterByDate 日付がstart以上end以下の行を残す。nilの境界は無制限。
// 境界が指定された場合、日付のない行は除外される。
func FilterByDate(f *Frame, start, end *time.Time) *Frame {
	if !f.HasColumn(f.DateColumn) || (start == nil && end == nil) {
		return f
	}
	out := make([]Row, 0, len(f.Rows))
	for i, row := range f.Rows {
		d := f.Date(i)
		if d == nil {
			continue
		}
		if start != nil && d.Before(*start) {
			continue
		}
		if end != nil && d.After(*end) {
			continue
		}
		out = append(out, row)
	}
	return f.slice(out)
}

// normalizeDates 日付列を正規化し、日付の昇順に並べ替える。
// 日付のない行は元の順序のまま末尾に置く。
func normalizeDates(f *Frame) {
	if !f.HasColumn(f.DateColumn) {
		return
	}
	for _, row := range f.Rows {
		if t := CoerceDate(row[f.DateColumn]); t != nil {
			row[f.DateColumn] = *t
		} else {
			row[f.DateColumn] = nil
		}
	}
	sort.SliceStable(f.Rows, func(i, j int) bool {
		a, aok := f.Rows[i][f.DateColumn].(time.Time)
		b, bok := f.Rows[j][f.DateColumn].(time.Time)
		switch {
		case aok && bok:
			return a.Before(b)
		case aok:
			return true
		default:
			return false
		}
	})
}

// FrameToRecords FrameをJSON向けのレコードに変換する。
// 日付はYYYY-MM-DD文字列に、nil・NaN・欠損セルはnullになる。
func FrameToRecords(f *Frame) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, f.Len())
	if f == nil {
		return records
	}
	for _, row := range f.Rows {
		rec := make(map[string]interface{}, len(f.Columns))
		for _, col := range f.Columns {
			rec[col] = wireValue(row[col], col == f.DateColumn)
		}
		records = append(records, rec)
	}
	return records
}

func wireValue(v interface{}, isDate bool) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		if isDate {
			return x.Format(DateLayout)
		}
		return x.Format(time.RFC3339)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
		return float64(x)
	}
	if isDate {
		if s := FormatDate(v); s != nil {
			return *s
		}
		return nil
	}
	return v
}

// RecordsToFrame 呼び出し側のレコードからFrameを作成する。
// 列は初出順に並び、日付列は寛容に変換される。
func RecordsToFrame(records []map[string]interface{}, dateColumn string) (*Frame, error) {
	if len(records) == 0 {
		return nil, errInvalidInput("no records provided")
	}
	f := &Frame{DateColumn: dateColumn, Rows: make([]Row, 0, len(records))}
	seen := make(map[string]bool)
	for i, rec := range records {
		if len(rec) == 0 {
			return nil, errInvalidInput("record %d is empty", i)
		}
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := make(Row, len(rec))
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				f.Columns = append(f.Columns, k)
			}
			v := rec[k]
			if k == dateColumn {
				if t := CoerceDate(v); t != nil {
					v = *t
				} else {
					v = nil
				}
			}
			row[k] = v
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}
