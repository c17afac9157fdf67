// Package store は結果スナップショット・手動マッピング・固定マッピングの永続化を担います。
//
// 書き込みは単一の接続とストア内のミューテックスで直列化され、複数行にまたがる更新は
// すべて 1 トランザクションで実行されます。失敗時はロールバックされ、呼び出し前の状態が残ります。
package store

import (
	"errors"
	"fmt"
	"sync"

	"ejrbom/database"
	"ejrbom/model"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var (
	ErrResultNotFound   = errors.New("mapping result not found")
	ErrOverrideNotFound = errors.New("manual mapping not found")
)

// Store はマッピング 3 テーブルへの書き込みを独占的に行います。
type Store struct {
	db  *sqlx.DB
	mu  sync.Mutex
	log logrus.FieldLogger
}

func New(db *sqlx.DB, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{db: db, log: log.WithField("component", "store")}
}

// withTx は fn を 1 トランザクション内で実行します。fn がエラーを返すかパニックした場合はロールバックします。
func (s *Store) withTx(name string, fn func(tx *sqlx.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			s.log.WithError(err).Warnf("Rolling back transaction for %s", name)
			tx.Rollback()
		} else {
			if err = tx.Commit(); err != nil {
				err = fmt.Errorf("failed to commit %s: %w", name, err)
			}
		}
	}()

	return fn(tx)
}

// ReplaceResultSnapshot は結果テーブルを rows で丸ごと置き換えます。
// 削除と登録は同一トランザクションで行われ、登録に失敗した場合は直前のスナップショットが残ります。
func (s *Store) ReplaceResultSnapshot(rows []model.MappingRow) error {
	return s.withTx("result snapshot replace", func(tx *sqlx.Tx) error {
		cleared, err := database.ClearMappingResultsInTx(tx)
		if err != nil {
			return err
		}
		for i, row := range rows {
			if err := row.Key().Validate(); err != nil {
				return fmt.Errorf("result #%d: %w", i, err)
			}
		}
		if err := database.InsertMappingResultsInTx(tx, rows); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"cleared": cleared, "inserted": len(rows)}).Info("result snapshot replaced")
		return nil
	})
}

// SetFixedFlag は結果行 1 件の固定フラグを更新します。
// 手動マッピングの行は更新されず、該当行がない場合は ErrResultNotFound を返します。
func (s *Store) SetFixedFlag(key model.MappingKey, fixed bool) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.withTx("fixed flag update", func(tx *sqlx.Tx) error {
		n, err := database.UpdateMappingFixedStatusInTx(tx, key, fixed)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrResultNotFound, key)
		}
		return nil
	})
}

// BulkSetFixedAndPersist は固定フラグの変更をまとめて反映します。
//
// 変更は入力順に適用されます。固定する場合は行全体を固定マッピングへ保存（同一キーは置換）し、
// 解除する場合は固定マッピングから削除したうえで、結果テーブルの is_fixed を更新します。
// 手動マッピングは対象外としてスキップします。1 件でも失敗すれば全体がロールバックされます。
func (s *Store) BulkSetFixedAndPersist(changes []model.FixedChange) (model.BulkFixedResult, error) {
	var result model.BulkFixedResult
	if len(changes) == 0 {
		return result, nil
	}

	err := s.withTx("bulk fixed update", func(tx *sqlx.Tx) error {
		for i, ch := range changes {
			if err := ch.Key.Validate(); err != nil {
				return fmt.Errorf("change #%d: %w", i, err)
			}
			if ch.Row.Classification == model.ClassificationManual {
				result.Skipped++
				continue
			}
			cls, found, err := database.GetMappingTypeInTx(tx, ch.Key)
			if err != nil {
				return fmt.Errorf("change #%d: %w", i, err)
			}
			if found && cls == model.ClassificationManual {
				result.Skipped++
				continue
			}

			if ch.Fixed {
				row, err := rowForKey(ch.Row, ch.Key)
				if err != nil {
					return fmt.Errorf("change #%d: %w", i, err)
				}
				if err := database.UpsertFixedMappingInTx(tx, row); err != nil {
					return fmt.Errorf("change #%d: %w", i, err)
				}
				result.Pinned++
			} else {
				if _, err := database.DeleteFixedMappingInTx(tx, ch.Key); err != nil {
					return fmt.Errorf("change #%d: %w", i, err)
				}
				result.Unpinned++
			}

			n, err := database.UpdateMappingFixedStatusInTx(tx, ch.Key, ch.Fixed)
			if err != nil {
				return fmt.Errorf("change #%d: %w", i, err)
			}
			if n == 0 {
				s.log.WithField("key", ch.Key.String()).Warn("no result row for fixed change, override table updated only")
			}
		}
		return nil
	})
	if err != nil {
		return model.BulkFixedResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"pinned":   result.Pinned,
		"unpinned": result.Unpinned,
		"skipped":  result.Skipped,
	}).Info("fixed mappings updated")
	return result, nil
}

// rowForKey は固定登録する行のキーを検査します。行にキーが無い場合は key を補います。
func rowForKey(row model.MappingRow, key model.MappingKey) (model.MappingRow, error) {
	rk := row.Key()
	if rk.EJOrderNo == nil && rk.RBOMOrderNo == nil && rk.RBOMLineNo == nil {
		row.EJOrderNo, row.RBOMOrderNo, row.RBOMLineNo = key.EJOrderNo, key.RBOMOrderNo, key.RBOMLineNo
		return row, nil
	}
	if !rk.Equal(key) {
		return row, fmt.Errorf("%w: record key %s does not match change key %s", model.ErrInvalidKey, rk, key)
	}
	return row, nil
}

// SaveManualOverride は手動マッピングを 1 件登録します。
func (s *Store) SaveManualOverride(row model.MappingRow) error {
	if err := row.Key().Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return database.InsertManualMapping(s.db, row)
}

// DeleteManualOverride は手動マッピングを 1 件削除します。
func (s *Store) DeleteManualOverride(key model.MappingKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := database.DeleteManualMapping(s.db, key)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrOverrideNotFound, key)
	}
	return nil
}

func (s *Store) GetManualOverrides() ([]model.MappingRow, error) {
	return database.GetManualMappings(s.db)
}

func (s *Store) GetFixedOverrides() ([]model.MappingRow, error) {
	return database.GetFixedMappings(s.db)
}

func (s *Store) GetResultSnapshot() ([]model.MappingRow, error) {
	return database.GetMappingResults(s.db)
}

// SaveExtractionCondition は抽出条件（納期範囲）を履歴に残します。
func (s *Store) SaveExtractionCondition(name, runID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return database.InsertExtractionCondition(s.db, name, runID, from, to)
}

func (s *Store) GetExtractionConditions(limit int) ([]model.ExtractionCondition, error) {
	return database.GetExtractionConditions(s.db, limit)
}
