package database

import (
	"fmt"

	"ejrbom/model"

	"github.com/jmoiron/sqlx"
)

// InsertManualMapping は手動マッピングを 1 件登録します。
// 同じ業務キーの手動マッピングが既にある場合は一意インデックス違反になります。
func InsertManualMapping(dbtx DBTX, row model.MappingRow) error {
	const q = `INSERT INTO manual_mappings (` + mappingColumns + `) VALUES (` + mappingNamedValues + `)`
	if _, err := dbtx.NamedExec(q, row); err != nil {
		return fmt.Errorf("failed to insert manual mapping %s: %w", row.Key(), err)
	}
	return nil
}

// DeleteManualMapping は手動マッピングを削除し、削除件数を返します。
func DeleteManualMapping(dbtx DBTX, key model.MappingKey) (int64, error) {
	where, args := keyPredicate(key)
	res, err := dbtx.Exec(`DELETE FROM manual_mappings WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete manual mapping %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for manual mapping %s: %w", key, err)
	}
	return n, nil
}

// GetManualMappings は手動マッピング一覧を取得します。
func GetManualMappings(dbtx DBTX) ([]model.MappingRow, error) {
	q := `SELECT ` + mappingColumns + `, '` + string(model.ClassificationManual) + `' AS mapping_type, 1 AS is_fixed
		FROM manual_mappings ` + mappingOrderBy

	rows := []model.MappingRow{}
	if err := dbtx.Select(&rows, q); err != nil {
		return nil, fmt.Errorf("failed to query manual_mappings: %w", err)
	}
	return rows, nil
}

// UpsertFixedMappingInTx は固定マッピングを業務キー単位で置き換えます。
func UpsertFixedMappingInTx(tx *sqlx.Tx, row model.MappingRow) error {
	if _, err := DeleteFixedMappingInTx(tx, row.Key()); err != nil {
		return err
	}
	const q = `INSERT INTO fixed_mappings (` + mappingColumns + `) VALUES (` + mappingNamedValues + `)`
	if _, err := tx.NamedExec(q, row); err != nil {
		return fmt.Errorf("failed to insert fixed mapping %s: %w", row.Key(), err)
	}
	return nil
}

// DeleteFixedMappingInTx は固定マッピングを削除し、削除件数を返します。
func DeleteFixedMappingInTx(tx *sqlx.Tx, key model.MappingKey) (int64, error) {
	where, args := keyPredicate(key)
	res, err := tx.Exec(`DELETE FROM fixed_mappings WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete fixed mapping %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for fixed mapping %s: %w", key, err)
	}
	return n, nil
}

// GetFixedMappings は固定マッピング一覧を取得します。
func GetFixedMappings(dbtx DBTX) ([]model.MappingRow, error) {
	q := `SELECT ` + mappingColumns + `, '` + string(model.ClassificationAuto) + `' AS mapping_type, 1 AS is_fixed
		FROM fixed_mappings ` + mappingOrderBy

	rows := []model.MappingRow{}
	if err := dbtx.Select(&rows, q); err != nil {
		return nil, fmt.Errorf("failed to query fixed_mappings: %w", err)
	}
	return rows, nil
}
