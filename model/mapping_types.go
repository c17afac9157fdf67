package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification はマッピング種別（自動/手動）です。
type Classification string

const (
	ClassificationAuto   Classification = "auto"
	ClassificationManual Classification = "manual"
)

// Label は画面表示用の種別名を返します。
func (c Classification) Label() string {
	if c == ClassificationManual {
		return "手動"
	}
	return "自動"
}

var ErrInvalidKey = errors.New("invalid mapping key")

// MappingKey は結果・固定・手動の各テーブル共通の業務キー
// (ej_order_no, rbom_order_no, rbom_line_no) です。nil は NULL を意味します。
type MappingKey struct {
	EJOrderNo   *string `json:"ejOrderNo"`
	RBOMOrderNo *string `json:"rbomOrderNo"`
	RBOMLineNo  *int64  `json:"rbomLineNo"`
}

// HasRBOM は rBOM 側のキーを持つかどうかを返します。
func (k MappingKey) HasRBOM() bool {
	return k.RBOMOrderNo != nil && k.RBOMLineNo != nil
}

// Validate はキーとして成立しているかを検査します。
// rBOM の発注番号と行番号は揃って存在するか、揃って欠けている必要があります。
func (k MappingKey) Validate() error {
	if (k.RBOMOrderNo == nil) != (k.RBOMLineNo == nil) {
		return fmt.Errorf("%w: rbom order and line must both be set or both be empty (%s)", ErrInvalidKey, k)
	}
	if k.EJOrderNo == nil && !k.HasRBOM() {
		return fmt.Errorf("%w: neither EJ nor rBOM key is set", ErrInvalidKey)
	}
	if k.EJOrderNo != nil && *k.EJOrderNo == "" {
		return fmt.Errorf("%w: empty EJ order number", ErrInvalidKey)
	}
	if k.RBOMOrderNo != nil && *k.RBOMOrderNo == "" {
		return fmt.Errorf("%w: empty rBOM order number", ErrInvalidKey)
	}
	return nil
}

// Equal は NULL 同士を等しいとみなして比較します。
func (k MappingKey) Equal(o MappingKey) bool {
	return eqStr(k.EJOrderNo, o.EJOrderNo) && eqStr(k.RBOMOrderNo, o.RBOMOrderNo) && eqInt(k.RBOMLineNo, o.RBOMLineNo)
}

// String は "EJ-RBOM-LINE" 形式の文字列を返します。欠けた部分は NULL と表記します。
func (k MappingKey) String() string {
	ej, order, line := "NULL", "NULL", "NULL"
	if k.EJOrderNo != nil {
		ej = *k.EJOrderNo
	}
	if k.RBOMOrderNo != nil {
		order = *k.RBOMOrderNo
	}
	if k.RBOMLineNo != nil {
		line = fmt.Sprintf("%d", *k.RBOMLineNo)
	}
	return ej + "-" + order + "-" + line
}

func eqStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MappingRow は mapping_results / fixed_mappings / manual_mappings の共通行です。
// is_fixed は mapping_results にのみ存在します。
type MappingRow struct {
	EJOrderNo      *string             `db:"ej_order_no" json:"ejOrderNo"`
	EJItemCode     *string             `db:"ej_item_code" json:"ejItemCode"`
	EJItemName     *string             `db:"ej_item_name" json:"ejItemName"`
	EJQuantity     decimal.NullDecimal `db:"ej_quantity" json:"ejQuantity"`
	EJStatus       *string             `db:"ej_status" json:"ejStatus"`
	EJOrderType    *string             `db:"ej_purch_odr_typ" json:"ejOrderType"`
	EJDeliveryDate *string             `db:"ej_delivery_date" json:"ejDeliveryDate"`

	RBOMOrderNo      *string             `db:"rbom_order_no" json:"rbomOrderNo"`
	RBOMLineNo       *int64              `db:"rbom_line_no" json:"rbomLineNo"`
	RBOMItemCode     *string             `db:"rbom_item_code" json:"rbomItemCode"`
	RBOMItemName     *string             `db:"rbom_item_name" json:"rbomItemName"`
	RBOMQuantity     decimal.NullDecimal `db:"rbom_quantity" json:"rbomQuantity"`
	RBOMDeliveryDate *string             `db:"rbom_delivery_date" json:"rbomDeliveryDate"`
	RBOMSerial       *string             `db:"rbom_seino" json:"rbomSerial"`

	Classification Classification `db:"mapping_type" json:"classification"`
	IsFixed        bool           `db:"is_fixed" json:"isFixed"`
}

// Key は行の業務キーを返します。
func (r MappingRow) Key() MappingKey {
	return MappingKey{EJOrderNo: r.EJOrderNo, RBOMOrderNo: r.RBOMOrderNo, RBOMLineNo: r.RBOMLineNo}
}

// Shape は行の形（マッチ済み/EJのみ/rBOMのみ）を返します。
func (r MappingRow) Shape() CandidateShape {
	k := r.Key()
	switch {
	case k.EJOrderNo != nil && k.HasRBOM():
		return ShapeMatched
	case k.EJOrderNo != nil:
		return ShapeEJOnly
	case k.HasRBOM():
		return ShapeRBOMOnly
	}
	return ShapeInvalid
}

// CandidateShape はマッピング候補の 3 つの形です。
type CandidateShape int

const (
	ShapeInvalid CandidateShape = iota
	ShapeMatched
	ShapeEJOnly
	ShapeRBOMOnly
)

func (s CandidateShape) String() string {
	switch s {
	case ShapeMatched:
		return "MATCHED"
	case ShapeEJOnly:
		return "EJ_ONLY"
	case ShapeRBOMOnly:
		return "RBOM_ONLY"
	}
	return "INVALID"
}

// MappingCandidate はマッチングエンジンが扱う単位です。
// EJ 側と rBOM 側の少なくとも一方を必ず持ち、生成はコンストラクタ経由に限られます。
type MappingCandidate struct {
	ej             *OrderRecord
	rbom           *OrderDetailRecord
	Classification Classification
	Fixed          bool
}

func NewMatched(ej OrderRecord, rbom OrderDetailRecord, c Classification, fixed bool) MappingCandidate {
	return MappingCandidate{ej: &ej, rbom: &rbom, Classification: c, Fixed: fixed}
}

func NewEJOnly(ej OrderRecord, c Classification, fixed bool) MappingCandidate {
	return MappingCandidate{ej: &ej, Classification: c, Fixed: fixed}
}

func NewRBOMOnly(rbom OrderDetailRecord, c Classification, fixed bool) MappingCandidate {
	return MappingCandidate{rbom: &rbom, Classification: c, Fixed: fixed}
}

// CandidateFromRow は永続化済みの行をそのまま候補に変換します。フィールドの再導出は行いません。
func CandidateFromRow(row MappingRow, c Classification, fixed bool) (MappingCandidate, error) {
	key := row.Key()
	if err := key.Validate(); err != nil {
		return MappingCandidate{}, err
	}
	cand := MappingCandidate{Classification: c, Fixed: fixed}
	if row.EJOrderNo != nil {
		cand.ej = &OrderRecord{
			OrderNo:      *row.EJOrderNo,
			ItemCode:     row.EJItemCode,
			ItemName:     row.EJItemName,
			Quantity:     row.EJQuantity,
			Status:       row.EJStatus,
			OrderType:    row.EJOrderType,
			DeliveryDate: row.EJDeliveryDate,
		}
	}
	if key.HasRBOM() {
		cand.rbom = &OrderDetailRecord{
			OrderNo:          *row.RBOMOrderNo,
			LineNo:           *row.RBOMLineNo,
			ItemCode:         row.RBOMItemCode,
			ItemName:         row.RBOMItemName,
			ReceivedQuantity: row.RBOMQuantity,
			DeliveryDate:     row.RBOMDeliveryDate,
			Seino:            row.RBOMSerial,
		}
	}
	return cand, nil
}

// EJ は EJ 側を返します。存在しない場合は nil です。
func (c MappingCandidate) EJ() *OrderRecord { return c.ej }

// RBOM は rBOM 側を返します。存在しない場合は nil です。
func (c MappingCandidate) RBOM() *OrderDetailRecord { return c.rbom }

func (c MappingCandidate) Shape() CandidateShape {
	switch {
	case c.ej != nil && c.rbom != nil:
		return ShapeMatched
	case c.ej != nil:
		return ShapeEJOnly
	case c.rbom != nil:
		return ShapeRBOMOnly
	}
	return ShapeInvalid
}

func (c MappingCandidate) Key() MappingKey {
	return c.Row().Key()
}

// Row は候補を永続化用の行に変換します。
func (c MappingCandidate) Row() MappingRow {
	row := MappingRow{Classification: c.Classification, IsFixed: c.Fixed}
	if c.ej != nil {
		orderNo := c.ej.OrderNo
		row.EJOrderNo = &orderNo
		row.EJItemCode = c.ej.ItemCode
		row.EJItemName = c.ej.ItemName
		row.EJQuantity = c.ej.Quantity
		row.EJStatus = c.ej.Status
		row.EJOrderType = c.ej.OrderType
		row.EJDeliveryDate = c.ej.DeliveryDate
	}
	if c.rbom != nil {
		orderNo, lineNo := c.rbom.OrderNo, c.rbom.LineNo
		row.RBOMOrderNo = &orderNo
		row.RBOMLineNo = &lineNo
		row.RBOMItemCode = c.rbom.ItemCode
		row.RBOMItemName = c.rbom.ItemName
		row.RBOMQuantity = c.rbom.ReceivedQuantity
		row.RBOMDeliveryDate = c.rbom.DeliveryDate
		row.RBOMSerial = c.rbom.Seino
	}
	return row
}

func (c MappingCandidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MappingRow
		Shape string `json:"shape"`
	}{c.Row(), c.Shape().String()})
}

// Rows は候補のスライスを行のスライスに変換します。
func Rows(cands []MappingCandidate) []MappingRow {
	rows := make([]MappingRow, 0, len(cands))
	for _, c := range cands {
		rows = append(rows, c.Row())
	}
	return rows
}

// FixedChange はマッピング確定フラグの変更 1 件です。
// Fixed が true の場合は Row が固定マッピングとして保存されます。
type FixedChange struct {
	Key   MappingKey `json:"key"`
	Fixed bool       `json:"fixed"`
	Row   MappingRow `json:"row"`
}

// BulkFixedResult は一括固定登録の件数です。
type BulkFixedResult struct {
	Pinned   int `json:"pinned"`
	Unpinned int `json:"unpinned"`
	Skipped  int `json:"skipped"`
}

// NearMiss は品目コードは一致するが数量が異なる潜在的マッチング候補です。
type NearMiss struct {
	EJOrderNo    string          `json:"ejOrderNo"`
	EJItemCode   string          `json:"ejItemCode"`
	EJQuantity   decimal.Decimal `json:"ejQuantity"`
	RBOMOrderNo  string          `json:"rbomOrderNo"`
	RBOMLineNo   int64           `json:"rbomLineNo"`
	RBOMQuantity decimal.Decimal `json:"rbomQuantity"`
	QuantityDiff decimal.Decimal `json:"quantityDiff"`
}

// Statistics はマッピング結果の集計です。
type Statistics struct {
	TotalCount    int     `json:"totalCount"`
	AutoCount     int     `json:"autoCount"`
	ManualCount   int     `json:"manualCount"`
	MatchedCount  int     `json:"matchedCount"`
	EJOnlyCount   int     `json:"ejOnlyCount"`
	RBOMOnlyCount int     `json:"rbomOnlyCount"`
	FixedCount    int     `json:"fixedCount"`
	MatchRate     float64 `json:"matchRate"`
}

// ExtractionCondition は抽出条件（納期範囲）の履歴です。
type ExtractionCondition struct {
	ID               int64     `db:"id" json:"id"`
	ConditionName    string    `db:"condition_name" json:"conditionName"`
	RunID            string    `db:"run_id" json:"runId"`
	DeliveryDateFrom string    `db:"delivery_date_from" json:"deliveryDateFrom"`
	DeliveryDateTo   string    `db:"delivery_date_to" json:"deliveryDateTo"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}
