package model

import "github.com/shopspring/decimal"

// OrderRecord は EJ システムの発注残 1 件を表します。
// EJ の発注は行分割されないため、発注番号単独がキーになります。
type OrderRecord struct {
	OrderNo      string              `db:"order_no" json:"orderNo"`
	ItemCode     *string             `db:"item_code" json:"itemCode"`
	ItemName     *string             `db:"item_name" json:"itemName"`
	Quantity     decimal.NullDecimal `db:"quantity" json:"quantity"`
	Status       *string             `db:"status" json:"status"`
	OrderType    *string             `db:"purch_odr_typ" json:"orderType"`
	DeliveryDate *string             `db:"delivery_date" json:"deliveryDate"`
}

// OrderDetailRecord は rBOM システムの発注明細（受入行）1 件を表します。
// キーは (発注番号, 行番号) です。
type OrderDetailRecord struct {
	OrderNo          string              `json:"orderNo"`
	LineNo           int64               `json:"lineNo"`
	ItemCode         *string             `json:"itemCode"`
	ItemName         *string             `json:"itemName"`
	ReceivedQuantity decimal.NullDecimal `json:"receivedQuantity"`
	DeliveryDate     *string             `json:"deliveryDate"`
	Seino            *string             `json:"seino"`
	Status           *string             `json:"status,omitempty"`
}

// Key は rBOM 明細のキーを返します。
func (r OrderDetailRecord) Key() RBOMKey {
	return RBOMKey{OrderNo: r.OrderNo, LineNo: r.LineNo}
}

// RBOMKey は rBOM 明細の (発注番号, 行番号) です。
type RBOMKey struct {
	OrderNo string
	LineNo  int64
}

// StringPtr は空文字を nil として扱うポインタ変換です。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Int64Ptr(n int64) *int64 {
	return &n
}

// Deref は nil を空文字として返します。
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
