package sources

import (
	"context"
	"fmt"
	"time"

	"ejrbom/model"
	"ejrbom/parsers"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// DefaultEJQuery は EJ の発注残を納期範囲で抽出するクエリです。
// 2 つのプレースホルダに納期開始日・終了日 (YYYY-MM-DD) が渡されます。
const DefaultEJQuery = `
	SELECT
		t.PUCH_ODR_CD AS order_no,
		t.ITEM_CD AS item_code,
		m.ITEM_NAME AS item_name,
		t.PUCH_ODR_QTY AS quantity,
		t.PUCH_ODR_STS_TYP AS status,
		t.PUCH_ODR_TYP AS purch_odr_typ,
		t.PUCH_ODR_DLV_DATE AS delivery_date
	FROM EXPJ2.T_RLSD_PUCH_ODR t
	LEFT JOIN EXPJ2.M_ITEM m ON t.ITEM_CD = m.ITEM_CD
	WHERE t.PUCH_ODR_STS_TYP = 2
	  AND t.PUCH_ODR_TYP != 4
	  AND t.PUCH_ODR_DLV_DATE >= TO_DATE(?, 'YYYY-MM-DD')
	  AND t.PUCH_ODR_DLV_DATE <= TO_DATE(?, 'YYYY-MM-DD')
	ORDER BY t.PUCH_ODR_CD`

// EJSQLSource は EJ のデータベースから発注残を取得します。
// ドライバはビルド時に登録されている database/sql ドライバ名で指定します。
type EJSQLSource struct {
	db     *sqlx.DB
	query  string
	cutoff time.Time
	log    logrus.FieldLogger
}

// NewEJSQLSource は EJ データベースへの接続を準備します。接続自体は最初の問い合わせまで行われません。
func NewEJSQLSource(driver, dsn, query string, cutoff time.Time, log logrus.FieldLogger) (*EJSQLSource, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open EJ database (%s): %w", ErrSourceUnavailable, driver, err)
	}
	return NewEJSQLSourceFromDB(db, query, cutoff, log), nil
}

// NewEJSQLSourceFromDB は既存の接続から EJSQLSource を作ります。
func NewEJSQLSourceFromDB(db *sqlx.DB, query string, cutoff time.Time, log logrus.FieldLogger) *EJSQLSource {
	if query == "" {
		query = DefaultEJQuery
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EJSQLSource{
		db:     db,
		query:  db.Rebind(query),
		cutoff: cutoff,
		log:    log.WithField("source", "ej"),
	}
}

// FetchBacklog は納期範囲内の発注残を取得します。範囲が抽出下限日より前から始まる場合は問い合わせを行いません。
func (s *EJSQLSource) FetchBacklog(ctx context.Context, r DateRange) ([]model.OrderRecord, error) {
	if err := r.Validate(s.cutoff); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx, s.query, r.FromString(), r.ToString())
	if err != nil {
		return nil, fmt.Errorf("%w: EJシステムからのデータ取得に失敗しました: %w", ErrSourceUnavailable, err)
	}
	defer rows.Close()

	records := []model.OrderRecord{}
	skipped := 0
	for rows.Next() {
		m := make(map[string]interface{})
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("%w: failed to scan EJ backlog row: %w", ErrSourceUnavailable, err)
		}
		rec, ok := parsers.EJRecordFromMap(m)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: EJ backlog rows error: %w", ErrSourceUnavailable, err)
	}

	s.log.WithFields(logrus.Fields{
		"from":    r.FromString(),
		"to":      r.ToString(),
		"records": len(records),
		"skipped": skipped,
	}).Info("EJ backlog fetched")
	return records, nil
}

// Ping は EJ データベースへの接続を確認します。
func (s *EJSQLSource) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: EJシステムへの接続に失敗しました: %w", ErrSourceUnavailable, err)
	}
	return nil
}

func (s *EJSQLSource) Close() error {
	return s.db.Close()
}
