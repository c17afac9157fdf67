package parsers

import (
	"encoding/json"
	"fmt"
	"io"

	"ejrbom/model"

	"github.com/sirupsen/logrus"
)

// rBOM /orders/ レスポンスの項目名
const (
	rbomOrderNo      = "PONO"
	rbomLineNo       = "LINENO"
	rbomItemCode     = "HMCD"
	rbomItemName     = "HMNM"
	rbomReceivedQty  = "RCVQTY"
	rbomDeliveryDate = "DRVDT"
	rbomSeino        = "SEINO"
	rbomStatus       = "STATUS"
)

// ParseRBOMOrders は rBOM API の発注明細 JSON 配列を解析します。
// 数値は文字列でも数値でも受け付け、発注番号か行番号を解釈できない明細はスキップします。
func ParseRBOMOrders(r io.Reader, log logrus.FieldLogger) ([]model.OrderDetailRecord, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var items []map[string]interface{}
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode rBOM orders payload: %w", err)
	}

	records := make([]model.OrderDetailRecord, 0, len(items))
	for i, item := range items {
		rec, ok := RBOMRecordFromMap(item)
		if !ok {
			log.WithField("index", i).Warnf("rBOM 明細 (発注番号または行番号が不正) (スキップ): PONO=%v LINENO=%v", item[rbomOrderNo], item[rbomLineNo])
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// RBOMRecordFromMap は rBOM の明細 1 件を正規化します。
func RBOMRecordFromMap(item map[string]interface{}) (model.OrderDetailRecord, bool) {
	orderNo := asString(item[rbomOrderNo])
	lineNo, ok := asInt(item[rbomLineNo])
	if orderNo == "" || !ok {
		return model.OrderDetailRecord{}, false
	}

	return model.OrderDetailRecord{
		OrderNo:          orderNo,
		LineNo:           lineNo,
		ItemCode:         model.StringPtr(asString(item[rbomItemCode])),
		ItemName:         model.StringPtr(asString(item[rbomItemName])),
		ReceivedQuantity: asQuantity(item[rbomReceivedQty]),
		DeliveryDate:     asDate(item[rbomDeliveryDate]),
		Seino:            model.StringPtr(asString(item[rbomSeino])),
		Status:           model.StringPtr(asString(item[rbomStatus])),
	}, true
}
