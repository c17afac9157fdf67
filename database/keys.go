package database

import (
	"strings"

	"ejrbom/model"
)

// keyPredicate は業務キーに対する WHERE 条件を組み立てます。
// NULL との等値比較は常に偽になるため、欠けている部分は IS NULL で照合します。
// EJ のみの行は rBOM 側が NULL の行だけに、rBOM のみの行は EJ 側が NULL の行だけに一致します。
func keyPredicate(key model.MappingKey) (string, []interface{}) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if key.EJOrderNo != nil {
		conds = append(conds, "ej_order_no = ?")
		args = append(args, *key.EJOrderNo)
	} else {
		conds = append(conds, "ej_order_no IS NULL")
	}

	if key.HasRBOM() {
		conds = append(conds, "rbom_order_no = ?", "rbom_line_no = ?")
		args = append(args, *key.RBOMOrderNo, *key.RBOMLineNo)
	} else {
		conds = append(conds, "rbom_order_no IS NULL", "rbom_line_no IS NULL")
	}

	return strings.Join(conds, " AND "), args
}

// mappingColumns は 3 テーブル共通の業務カラムです。
const mappingColumns = `
	ej_order_no, ej_item_code, ej_item_name, ej_quantity, ej_status, ej_purch_odr_typ, ej_delivery_date,
	rbom_order_no, rbom_line_no, rbom_item_code, rbom_item_name, rbom_quantity, rbom_delivery_date, rbom_seino`

const mappingNamedValues = `
	:ej_order_no, :ej_item_code, :ej_item_name, :ej_quantity, :ej_status, :ej_purch_odr_typ, :ej_delivery_date,
	:rbom_order_no, :rbom_line_no, :rbom_item_code, :rbom_item_name, :rbom_quantity, :rbom_delivery_date, :rbom_seino`

const mappingOrderBy = `ORDER BY ej_order_no, rbom_order_no, rbom_line_no`
