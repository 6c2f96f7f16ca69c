package services

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout 日付属性のワイヤーフォーマット
const DateLayout = "2006-01-02"

// 受け付ける日付フォーマット（先頭から順に試す）
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"20060102",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseDate リクエストの絞り込みで使う厳格な日付解析。
// nilは境界の指定なし、解析できない値はInvalidDateになる。
func ParseDate(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, ok := parseAnyDate(value)
	if !ok {
		return nil, errInvalidDate(value)
	}
	return &t, nil
}

// CoerceDate 表示・サマリー・データセット正規化で使う寛容な日付変換。
// 日付として解釈できない値はnilになる。
func CoerceDate(value interface{}) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		d := canonicalDay(v)
		return &d
	case *time.Time:
		if v == nil {
			return nil
		}
		return CoerceDate(*v)
	case string:
		t, ok := parseAnyDate(v)
		if !ok {
			return nil
		}
		return &t
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil
		}
		return CoerceDate(strconv.FormatInt(int64(v), 10))
	case int:
		return CoerceDate(strconv.Itoa(v))
	case int64:
		return CoerceDate(strconv.FormatInt(v, 10))
	case int32:
		return CoerceDate(strconv.FormatInt(int64(v), 10))
	}
	return nil
}

// FormatDate 日付らしい値をYYYY-MM-DD形式に変換する。変換できなければnil
func FormatDate(value interface{}) *string {
	t := CoerceDate(value)
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

func parseAnyDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return canonicalDay(t), true
		}
	}
	return time.Time{}, false
}

// canonicalDay タイムゾーン付きの時刻をUTCに変換し、0時に切り捨てる
func canonicalDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
