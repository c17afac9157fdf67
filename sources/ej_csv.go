package sources

import (
	"context"
	"fmt"
	"os"
	"time"

	"ejrbom/model"
	"ejrbom/parsers"

	"github.com/sirupsen/logrus"
)

// EJCSVSource は EJ から出力された発注残 CSV を読み込みます。
type EJCSVSource struct {
	path     string
	shiftJIS bool
	cutoff   time.Time
	log      logrus.FieldLogger
}

func NewEJCSVSource(path string, shiftJIS bool, cutoff time.Time, log logrus.FieldLogger) *EJCSVSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EJCSVSource{path: path, shiftJIS: shiftJIS, cutoff: cutoff, log: log.WithField("source", "ej_csv")}
}

// FetchBacklog は CSV を読み込み、納期範囲外の行を除きます。納期の無い行は残します。
func (s *EJCSVSource) FetchBacklog(ctx context.Context, r DateRange) ([]model.OrderRecord, error) {
	if err := r.Validate(s.cutoff); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open EJ backlog CSV %s: %w", ErrSourceUnavailable, s.path, err)
	}
	defer f.Close()

	all, err := parsers.ParseEJBacklogCSV(f, s.shiftJIS, s.log)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse EJ backlog CSV %s: %w", ErrSourceUnavailable, s.path, err)
	}

	records := make([]model.OrderRecord, 0, len(all))
	for _, rec := range all {
		if r.ContainsDate(rec.DeliveryDate) {
			records = append(records, rec)
		}
	}

	s.log.WithFields(logrus.Fields{"path": s.path, "read": len(all), "records": len(records)}).Info("EJ backlog CSV loaded")
	return records, nil
}

// Ping は CSV ファイルが読めるかを確認します。
func (s *EJCSVSource) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return nil
}
