package database

import (
	"database/sql"
	"errors"
	"fmt"

	"ejrbom/model"

	"github.com/jmoiron/sqlx"
)

// ClearMappingResultsInTx は mapping_results を全件削除します。
func ClearMappingResultsInTx(tx *sqlx.Tx) (int64, error) {
	res, err := tx.Exec(`DELETE FROM mapping_results`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear mapping_results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for mapping_results clear: %w", err)
	}
	return n, nil
}

// InsertMappingResultsInTx は準備済みステートメント 1 つで結果行を一括登録します。
func InsertMappingResultsInTx(tx *sqlx.Tx, rows []model.MappingRow) error {
	const q = `
		INSERT INTO mapping_results (` + mappingColumns + `, mapping_type, is_fixed)
		VALUES (` + mappingNamedValues + `, :mapping_type, :is_fixed)`

	stmt, err := tx.PrepareNamed(q)
	if err != nil {
		return fmt.Errorf("failed to prepare mapping_results insert statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if row.Classification == "" {
			row.Classification = model.ClassificationAuto
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("failed to insert mapping result #%d (%s): %w", i, row.Key(), err)
		}
	}
	return nil
}

// UpdateMappingFixedStatusInTx は結果行の is_fixed を更新し、更新件数を返します。
// 手動マッピングの行は対象外です。
func UpdateMappingFixedStatusInTx(tx *sqlx.Tx, key model.MappingKey, fixed bool) (int64, error) {
	where, args := keyPredicate(key)
	q := `UPDATE mapping_results SET is_fixed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE ` + where + ` AND mapping_type <> ?`

	params := append([]interface{}{fixed}, args...)
	params = append(params, model.ClassificationManual)

	res, err := tx.Exec(q, params...)
	if err != nil {
		return 0, fmt.Errorf("failed to update is_fixed for %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", key, err)
	}
	return n, nil
}

// GetMappingTypeInTx は結果行の種別を返します。行がない場合は found が false です。
func GetMappingTypeInTx(tx *sqlx.Tx, key model.MappingKey) (cls model.Classification, found bool, err error) {
	where, args := keyPredicate(key)
	err = tx.Get(&cls, `SELECT mapping_type FROM mapping_results WHERE `+where+` LIMIT 1`, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get mapping_type for %s: %w", key, err)
	}
	return cls, true, nil
}

// GetMappingResults は結果スナップショットを業務キー順で取得します。
func GetMappingResults(dbtx DBTX) ([]model.MappingRow, error) {
	const q = `SELECT ` + mappingColumns + `, mapping_type, is_fixed FROM mapping_results ` + mappingOrderBy

	rows := []model.MappingRow{}
	if err := dbtx.Select(&rows, q); err != nil {
		return nil, fmt.Errorf("failed to query mapping_results: %w", err)
	}
	return rows, nil
}
