// Package mappers は結果行を画面表示用の形に変換します。
package mappers

import (
	"fmt"
	"strconv"
	"strings"

	"ejrbom/model"
)

const (
	orderNoWidth = 9
	lineNoWidth  = 3
)

// MappingRowView は統合表示グリッドの 1 行です。
type MappingRowView struct {
	model.MappingRow
	RBOMOrderLine    string `json:"rbomOrderLine"`
	Status           string `json:"status"`
	MappingTypeLabel string `json:"mappingTypeLabel"`
	RowKey           string `json:"rowKey"`
}

// ToMappingRowView は結果行を表示用に変換します。
func ToMappingRowView(row model.MappingRow) MappingRowView {
	return MappingRowView{
		MappingRow:       row,
		RBOMOrderLine:    FormatOrderLine(row.RBOMOrderNo, row.RBOMLineNo),
		Status:           row.Shape().String(),
		MappingTypeLabel: row.Classification.Label(),
		RowKey:           row.Key().String(),
	}
}

// ConvertToView は結果行のスライスを表示用に変換します。
func ConvertToView(rows []model.MappingRow) []MappingRowView {
	views := make([]MappingRowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ToMappingRowView(row))
	}
	return views
}

// FormatOrderLine は rBOM の発注番号と行番号を "000000123+001" 形式に連結します。
// どちらかが無い場合は空文字を返します。
func FormatOrderLine(orderNo *string, lineNo *int64) string {
	if orderNo == nil || lineNo == nil {
		return ""
	}
	return zeroPad(*orderNo, orderNoWidth) + "+" + zeroPad(strconv.FormatInt(*lineNo, 10), lineNoWidth)
}

// ParseOrderLine は "000000123+001" 形式を発注番号と行番号に分解します。
// 発注番号はゼロ埋めされたまま返します。
func ParseOrderLine(s string) (string, int64, error) {
	order, line, ok := strings.Cut(strings.TrimSpace(s), "+")
	if !ok || order == "" || line == "" {
		return "", 0, fmt.Errorf("%w: rBOM order line %q must be ORDER+LINE", model.ErrInvalidKey, s)
	}
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: rBOM line number in %q: %v", model.ErrInvalidKey, s, err)
	}
	return order, n, nil
}

// FindByDisplayKey は EJ 発注番号と表示用の rBOM 発注番号+行番号から行を探します。
// 表示上はゼロ埋めされるため、保存値ではなく表示文字列同士で比較します。
func FindByDisplayKey(rows []model.MappingRow, ejOrderNo, orderLine string) (model.MappingRow, bool) {
	if orderLine != "" {
		if _, _, err := ParseOrderLine(orderLine); err != nil {
			return model.MappingRow{}, false
		}
	}
	for _, row := range rows {
		if model.Deref(row.EJOrderNo) != ejOrderNo {
			continue
		}
		if FormatOrderLine(row.RBOMOrderNo, row.RBOMLineNo) == strings.TrimSpace(orderLine) {
			return row, true
		}
	}
	return model.MappingRow{}, false
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
