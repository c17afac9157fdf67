package database

import (
	"fmt"

	"ejrbom/model"
)

// InsertExtractionCondition は抽出条件の履歴を 1 件登録します。
func InsertExtractionCondition(dbtx DBTX, name, runID, from, to string) error {
	const q = `
		INSERT INTO extraction_conditions (condition_name, run_id, delivery_date_from, delivery_date_to)
		VALUES (?, ?, ?, ?)`
	if _, err := dbtx.Exec(q, name, runID, from, to); err != nil {
		return fmt.Errorf("failed to insert extraction condition %s: %w", name, err)
	}
	return nil
}

// GetExtractionConditions は抽出条件の履歴を新しい順に取得します。
func GetExtractionConditions(dbtx DBTX, limit int) ([]model.ExtractionCondition, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT id, condition_name, run_id, delivery_date_from, delivery_date_to, created_at
		FROM extraction_conditions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	conds := []model.ExtractionCondition{}
	if err := dbtx.Select(&conds, q, limit); err != nil {
		return nil, fmt.Errorf("failed to query extraction_conditions: %w", err)
	}
	return conds, nil
}
