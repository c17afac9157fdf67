package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"ejrbom/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// ejColumnAliases は EJ 発注残の各項目に対応する列名です。
// SQL の別名と、EJ テーブルの物理名の両方を受け付けます。
var ejColumnAliases = map[string][]string{
	"order_no":      {"order_no", "puch_odr_cd", "発注番号"},
	"item_code":     {"item_code", "item_cd", "品目コード"},
	"item_name":     {"item_name", "品目名"},
	"quantity":      {"quantity", "puch_odr_qty", "発注数量"},
	"status":        {"status", "puch_odr_sts_typ", "ステータス"},
	"purch_odr_typ": {"purch_odr_typ", "puch_odr_typ", "発注区分"},
	"delivery_date": {"delivery_date", "puch_odr_dlv_date", "納期"},
}

// EJRecordFromMap は列名→値のマップ（SQL の MapScan 結果や CSV 行）から発注残レコードを組み立てます。
// 発注番号が空の行は false を返します。
func EJRecordFromMap(m map[string]interface{}) (model.OrderRecord, bool) {
	get := func(field string) interface{} {
		for _, name := range ejColumnAliases[field] {
			if v, ok := m[name]; ok {
				return v
			}
			if v, ok := m[strings.ToUpper(name)]; ok {
				return v
			}
		}
		return nil
	}

	orderNo := asString(get("order_no"))
	if orderNo == "" {
		return model.OrderRecord{}, false
	}

	return model.OrderRecord{
		OrderNo:      orderNo,
		ItemCode:     model.StringPtr(asString(get("item_code"))),
		ItemName:     model.StringPtr(asString(get("item_name"))),
		Quantity:     asQuantity(get("quantity")),
		Status:       model.StringPtr(asString(get("status"))),
		OrderType:    model.StringPtr(asString(get("purch_odr_typ"))),
		DeliveryDate: asDate(get("delivery_date")),
	}, true
}

// ParseEJBacklogCSV は EJ から出力された発注残 CSV を解析します。
// shiftJIS が true の場合は Shift_JIS として読み込みます。log が nil の場合は標準ロガーに出力します。
func ParseEJBacklogCSV(r io.Reader, shiftJIS bool, log logrus.FieldLogger) ([]model.OrderRecord, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	src := SkipBOM(r)
	if shiftJIS {
		src = transform.NewReader(src, japanese.ShiftJIS.NewDecoder())
	}
	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSVファイルが空です")
	}
	if err != nil {
		return nil, fmt.Errorf("CSVヘッダーの読み取りに失敗: %w", err)
	}

	colIndex, err := getColIndex(header, ejColumnAliases, []string{"order_no"})
	if err != nil {
		return nil, err
	}

	records := []model.OrderRecord{}
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warnf("EJ CSV %d行目の読み取りエラー (スキップ): %v", line, err)
			continue
		}

		row := make(map[string]interface{}, len(colIndex))
		for field, idx := range colIndex {
			if idx < len(rec) {
				row[field] = rec[idx]
			}
		}

		order, ok := EJRecordFromMap(row)
		if !ok {
			log.Warnf("EJ CSV %d行目 (発注番号が空) (スキップ)", line)
			continue
		}
		records = append(records, order)
	}
	return records, nil
}
