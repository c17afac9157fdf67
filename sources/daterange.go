// Package sources は EJ・rBOM の各システムから発注データを取得します。
package sources

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidRange は納期範囲が不正（未指定、開始日が終了日より後など）であることを示します。
	ErrInvalidRange = errors.New("invalid delivery date range")
	// ErrBeforeCutoff は納期開始日が抽出下限日より前であることを示します。
	ErrBeforeCutoff = errors.New("delivery date range starts before cutoff")
	// ErrSourceUnavailable は接続先システムからの取得失敗を示します。
	ErrSourceUnavailable = errors.New("source unavailable")
)

// DefaultCutoff は EJ 発注残の抽出下限日です。データ量を抑えるための制限です。
var DefaultCutoff = time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

var validate = validator.New()

// DateRange は納期の範囲（両端を含む）です。
type DateRange struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required,gtefield=From"`
}

// ParseDateRange は YYYY-MM-DD 形式の文字列から DateRange を作ります。
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := time.Parse(dateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: from %q: %v", ErrInvalidRange, from, err)
	}
	t, err := time.Parse(dateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: to %q: %v", ErrInvalidRange, to, err)
	}
	return DateRange{From: f, To: t}, nil
}

// Validate は範囲を検査します。cutoff がゼロ値でなければ、開始日がそれより前の範囲を拒否します。
func (r DateRange) Validate(cutoff time.Time) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s - %s: %v", ErrInvalidRange, r.FromString(), r.ToString(), err)
	}
	if !cutoff.IsZero() && dateOnly(r.From).Before(dateOnly(cutoff)) {
		return fmt.Errorf("%w: 納期開始日は%s以降を指定してください (指定: %s)", ErrBeforeCutoff, cutoff.Format(dateLayout), r.FromString())
	}
	return nil
}

func (r DateRange) FromString() string { return r.From.Format(dateLayout) }
func (r DateRange) ToString() string   { return r.To.Format(dateLayout) }

// YearMonth は rBOM API の取得単位です。
type YearMonth struct {
	Year  int
	Month time.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Months は範囲に含まれる暦月を古い順に返します。
func (r DateRange) Months() []YearMonth {
	if r.To.Before(r.From) {
		return nil
	}
	cur := time.Date(r.From.Year(), r.From.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(r.To.Year(), r.To.Month(), 1, 0, 0, 0, 0, time.UTC)

	var months []YearMonth
	for !cur.After(end) {
		months = append(months, YearMonth{Year: cur.Year(), Month: cur.Month()})
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// ContainsDate は YYYY-MM-DD 形式の日付が範囲内かを返します。
// 日付が無い、または解釈できない場合は範囲内として扱います。
func (r DateRange) ContainsDate(date *string) bool {
	if date == nil || *date == "" {
		return true
	}
	d, err := time.Parse(dateLayout, *date)
	if err != nil {
		return true
	}
	return !d.Before(dateOnly(r.From)) && !d.After(dateOnly(r.To))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
