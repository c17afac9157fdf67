package parsers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SkipBOM はUTF-8 BOMをスキップします。
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	bom := []byte{0xEF, 0xBB, 0xBF}
	peeked, err := br.Peek(3)
	if err != nil {
		return br
	}
	isBOM := true
	for i, b := range bom {
		if peeked[i] != b {
			isBOM = false
			break
		}
	}
	if isBOM {
		br.Read(make([]byte, 3))
	}
	return br
}

// getColIndex はヘッダー名から列インデックスを取得するヘルパーです。
// ヘッダーは前後の空白を除き小文字化して照合し、別名のいずれかが見つかれば採用します。
func getColIndex(header []string, aliases map[string][]string, required []string) (map[string]int, error) {
	byName := make(map[string]int)
	for i, colName := range header {
		byName[strings.ToLower(strings.TrimSpace(colName))] = i
	}

	colIndex := make(map[string]int)
	for field, names := range aliases {
		for _, name := range names {
			if idx, ok := byName[strings.ToLower(name)]; ok {
				colIndex[field] = idx
				break
			}
		}
	}
	for _, req := range required {
		if _, ok := colIndex[req]; !ok {
			return nil, fmt.Errorf("必須ヘッダーが見つかりません: %s", req)
		}
	}
	return colIndex, nil
}

// ParseQuantity は数量文字列を解釈します。空欄や数値でない値は無効 (Valid=false) になります。
func ParseQuantity(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"20060102",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// NormalizeDate は日付を YYYY-MM-DD 形式に揃えます。
// 解釈できない場合は元の文字列（前後の空白を除く）と false を返します。
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return s, false
}

// asString は JSON・DB・CSV 由来の値を文字列に揃えます。
func asString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// asInt は行番号のような整数値を解釈します。"3" や 3.0 も受け付けます。
func asInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	}
	s := asString(v)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// asQuantity は数量を decimal に変換します。float64 は最短表現で変換します。
func asQuantity(v interface{}) decimal.NullDecimal {
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(x))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(x))
	}
	return ParseQuantity(asString(v))
}

// asDate は日付値を正規化し、空なら nil を返します。
func asDate(v interface{}) *string {
	s, _ := NormalizeDate(asString(v))
	if s == "" {
		return nil
	}
	return &s
}
