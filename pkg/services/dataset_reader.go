package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/xuri/excelize/v2"
)

// readDatasetFile 拡張子に応じたリーダーで表形式ファイルを読み込む。
// 日付の正規化は呼び出し側で行う。
func readDatasetFile(path, dateColumn string) (*Frame, error) {
	var (
		f   *Frame
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		f, err = readParquet(path)
	case ".xlsx":
		f, err = readXLSX(path)
	case ".csv":
		f, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	f.DateColumn = dateColumn
	return f, nil
}

// readParquet フラットなparquetファイルの全行を読み込む。
// 保存されたインデックス列（__index_level_N）は読み飛ばす。
func readParquet(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet: %w", err)
	}

	schema := pf.Schema()
	type leafInfo struct {
		name    string
		logical *format.LogicalType
		skip    bool
	}
	paths := schema.Columns()
	cols := make([]leafInfo, len(paths))
	frame := &Frame{}
	for i, p := range paths {
		name := strings.Join(p, ".")
		leaf, ok := schema.Lookup(p...)
		li := leafInfo{name: name, skip: strings.HasPrefix(name, "__index_level_")}
		if ok {
			li.logical = leaf.Node.Type().LogicalType()
		}
		cols[i] = li
		if !li.skip {
			frame.Columns = append(frame.Columns, name)
		}
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	buf := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(buf)
		for _, values := range buf[:n] {
			row := make(Row, len(frame.Columns))
			for _, v := range values {
				idx := v.Column()
				if idx < 0 || idx >= len(cols) || cols[idx].skip {
					continue
				}
				row[cols[idx].name] = parquetValue(v, cols[idx].logical)
			}
			frame.Rows = append(frame.Rows, row)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parquet: %w", err)
		}
	}
	return frame, nil
}

func parquetValue(v parquet.Value, logical *format.LogicalType) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		if logical != nil && logical.Date != nil {
			return time.Unix(int64(v.Int32())*86400, 0).UTC()
		}
		return float64(v.Int32())
	case parquet.Int64:
		if logical != nil && logical.Timestamp != nil {
			return parquetTimestamp(v.Int64(), logical.Timestamp.Unit)
		}
		return float64(v.Int64())
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}

func parquetTimestamp(n int64, unit format.TimeUnit) time.Time {
	switch {
	case unit.Nanos != nil:
		return time.Unix(0, n).UTC()
	case unit.Micros != nil:
		return time.UnixMicro(n).UTC()
	default:
		return time.UnixMilli(n).UTC()
	}
}

// readXLSX 最初のシートを読み込む。1行目をヘッダーとする
func readXLSX(path string) (*Frame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	return frameFromStringRows(rows)
}

func readCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	return frameFromStringRows(rows)
}

func frameFromStringRows(rows [][]string) (*Frame, error) {
	if len(rows) == 0 {
		return nil, errors.New("dataset: no header row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	frame := &Frame{Columns: header, Rows: make([]Row, 0, len(rows)-1)}
	for _, rec := range rows[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = inferCell(rec[i])
			} else {
				row[col] = nil
			}
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame, nil
}

// inferCell テキストのセルをnil・float64・stringのいずれかに変換
func inferCell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}
