package reconcile

import (
	"errors"
	"fmt"
	"sync"

	"ejrbom/model"
)

var (
	ErrUnknownRow = errors.New("row is not in the current result snapshot")
	ErrManualRow  = errors.New("manual mappings cannot be fixed or unfixed")
)

// Session は結果スナップショットに対する画面上の確定チェックの編集状態を保持します。
// 編集はコミットされるまでデータベースに反映されません。
type Session struct {
	mu     sync.Mutex
	rows   []model.MappingRow
	index  map[rowKey]int
	states map[rowKey]bool
}

// rowKey は NULL を区別できる比較可能なキーです。表示用の文字列キーは区切り文字を含む番号で衝突します。
type rowKey struct {
	ej      string
	hasEJ   bool
	order   string
	line    int64
	hasRBOM bool
}

func keyFor(k model.MappingKey) rowKey {
	var rk rowKey
	if k.EJOrderNo != nil {
		rk.ej, rk.hasEJ = *k.EJOrderNo, true
	}
	if k.HasRBOM() {
		rk.order, rk.line, rk.hasRBOM = *k.RBOMOrderNo, *k.RBOMLineNo, true
	}
	return rk
}

func NewSession(rows []model.MappingRow) *Session {
	s := &Session{}
	s.Reset(rows)
	return s
}

// Reset はスナップショットを入れ替え、編集状態を破棄します。
func (s *Session) Reset(rows []model.MappingRow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append([]model.MappingRow(nil), rows...)
	s.index = make(map[rowKey]int, len(rows))
	for i, r := range s.rows {
		s.index[keyFor(r.Key())] = i
	}
	s.states = make(map[rowKey]bool)
}

// SetFixed は 1 行の確定チェックを変更します。
func (s *Session) SetFixed(key model.MappingKey, fixed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyFor(key)
	i, ok := s.index[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRow, key)
	}
	if s.rows[i].Classification == model.ClassificationManual {
		return fmt.Errorf("%w: %s", ErrManualRow, key)
	}
	s.states[k] = fixed
	return nil
}

// selectable は全選択・全解除の対象（手動以外で EJ 発注番号を持つ行）かどうかを返します。
func selectable(r model.MappingRow) bool {
	return r.Classification != model.ClassificationManual && r.EJOrderNo != nil
}

// SelectAll は対象行をすべて確定にし、対象件数を返します。
func (s *Session) SelectAll() int { return s.setAll(true) }

// DeselectAll は対象行の確定をすべて外し、対象件数を返します。
func (s *Session) DeselectAll() int { return s.setAll(false) }

func (s *Session) setAll(fixed bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.rows {
		if selectable(r) {
			s.states[keyFor(r.Key())] = fixed
			n++
		}
	}
	return n
}

// AllSelected は対象行が 1 件以上あり、そのすべてが確定状態かを返します。
func (s *Session) AllSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.rows {
		if !selectable(r) {
			continue
		}
		n++
		if !s.effective(r) {
			return false
		}
	}
	return n > 0
}

func (s *Session) effective(r model.MappingRow) bool {
	if v, ok := s.states[keyFor(r.Key())]; ok {
		return v
	}
	return r.IsFixed
}

// Rows は編集状態を反映した行を返します。
func (s *Session) Rows() []model.MappingRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.MappingRow, len(s.rows))
	for i, r := range s.rows {
		r.IsFixed = s.effective(r)
		out[i] = r
	}
	return out
}

// Changes はスナップショットと比べて確定状態が変わった行を、スナップショットの順で返します。手動マッピングは含みません。
func (s *Session) Changes() []model.FixedChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []model.FixedChange
	for _, r := range s.rows {
		if r.Classification == model.ClassificationManual {
			continue
		}
		v, ok := s.states[keyFor(r.Key())]
		if !ok || v == r.IsFixed {
			continue
		}
		row := r
		row.IsFixed = v
		changes = append(changes, model.FixedChange{Key: r.Key(), Fixed: v, Row: row})
	}
	return changes
}
