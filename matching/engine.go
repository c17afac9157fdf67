// Package matching は EJ 発注残と rBOM 発注明細の突き合わせを行います。
package matching

import (
	"sort"
	"strings"

	"ejrbom/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine はマッピング処理エンジンです。状態を持たないため、異なるオーバーライドで何度呼び出しても副作用はありません。
type Engine struct {
	log logrus.FieldLogger
}

func NewEngine(log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{log: log}
}

// rowKey は NULL を区別できる比較可能なキーです。
type rowKey struct {
	ej      string
	hasEJ   bool
	order   string
	line    int64
	hasRBOM bool
}

func keyOf(k model.MappingKey) rowKey {
	var rk rowKey
	if k.EJOrderNo != nil {
		rk.ej, rk.hasEJ = *k.EJOrderNo, true
	}
	if k.HasRBOM() {
		rk.order, rk.line, rk.hasRBOM = *k.RBOMOrderNo, *k.RBOMLineNo, true
	}
	return rk
}

// Execute は手動・固定マッピングを考慮してマッピングを実行します。
//
//  1. 手動マッピングに含まれる EJ 発注番号・rBOM (発注番号, 行番号) を除外し、手動行をそのまま出力
//  2. 固定マッピングについて同様に除外し、固定行を自動・固定済みとして出力
//  3. 残りを品目コード + 数量の完全一致で先勝ち（入力順）マッチング
//  4. マッチしなかったものを EJ のみ / rBOM のみとして出力
func (e *Engine) Execute(ej []model.OrderRecord, rbom []model.OrderDetailRecord, manual, fixed []model.MappingRow) []model.MappingCandidate {
	excludedEJ := make(map[string]struct{})
	excludedRBOM := make(map[model.RBOMKey]struct{})
	emitted := make(map[rowKey]struct{})

	results := make([]model.MappingCandidate, 0, len(ej)+len(rbom)+len(manual)+len(fixed))

	tiers := []struct {
		rows []model.MappingRow
		cls  model.Classification
		name string
	}{
		{manual, model.ClassificationManual, "manual"},
		{fixed, model.ClassificationAuto, "fixed"},
	}
	for _, tier := range tiers {
		for _, row := range tier.rows {
			if row.EJOrderNo != nil {
				excludedEJ[*row.EJOrderNo] = struct{}{}
			}
			if row.Key().HasRBOM() {
				excludedRBOM[model.RBOMKey{OrderNo: *row.RBOMOrderNo, LineNo: *row.RBOMLineNo}] = struct{}{}
			}

			cand, err := model.CandidateFromRow(row, tier.cls, true)
			if err != nil {
				e.log.WithError(err).WithField("tier", tier.name).Warn("skipping override row without a usable key")
				continue
			}
			rk := keyOf(cand.Key())
			if _, dup := emitted[rk]; dup {
				e.log.WithField("key", cand.Key().String()).WithField("tier", tier.name).
					Warn("override key already emitted by a higher tier, dropping duplicate")
				continue
			}
			emitted[rk] = struct{}{}
			results = append(results, cand)
		}
	}

	ejPool := make([]model.OrderRecord, 0, len(ej))
	for _, rec := range ej {
		if _, ok := excludedEJ[rec.OrderNo]; ok {
			continue
		}
		ejPool = append(ejPool, rec)
	}
	rbomPool := make([]model.OrderDetailRecord, 0, len(rbom))
	for _, rec := range rbom {
		if _, ok := excludedRBOM[rec.Key()]; ok {
			continue
		}
		rbomPool = append(rbomPool, rec)
	}

	rbomKeys := make([]matchKey, len(rbomPool))
	for j, rec := range rbomPool {
		rbomKeys[j] = newMatchKey(rec.ItemCode, rec.ReceivedQuantity)
	}

	ejMatched := make([]bool, len(ejPool))
	rbomMatched := make([]bool, len(rbomPool))
	for i, rec := range ejPool {
		k := newMatchKey(rec.ItemCode, rec.Quantity)
		if !k.ok {
			continue
		}
		for j := range rbomPool {
			if rbomMatched[j] || !rbomKeys[j].ok {
				continue
			}
			if k.matches(rbomKeys[j]) {
				results = append(results, model.NewMatched(rec, rbomPool[j], model.ClassificationAuto, false))
				ejMatched[i] = true
				rbomMatched[j] = true
				break
			}
		}
	}

	for i, rec := range ejPool {
		if !ejMatched[i] {
			results = append(results, model.NewEJOnly(rec, model.ClassificationAuto, false))
		}
	}
	for j, rec := range rbomPool {
		if !rbomMatched[j] {
			results = append(results, model.NewRBOMOnly(rec, model.ClassificationAuto, false))
		}
	}

	e.log.WithFields(logrus.Fields{
		"ej":      len(ej),
		"rbom":    len(rbom),
		"manual":  len(manual),
		"fixed":   len(fixed),
		"results": len(results),
	}).Info("mapping executed")

	return results
}

// matchKey は自動マッチングの比較対象です。品目コードか数量が NULL の場合 ok は false です。
type matchKey struct {
	itemCode string
	quantity decimal.Decimal
	ok       bool
}

// 空白だけの品目コードは欠損ではなく値として扱い、前後の空白を除いて比較します。
func newMatchKey(itemCode *string, qty decimal.NullDecimal) matchKey {
	if itemCode == nil || !qty.Valid {
		return matchKey{}
	}
	return matchKey{itemCode: strings.TrimSpace(*itemCode), quantity: qty.Decimal, ok: true}
}

func (k matchKey) matches(o matchKey) bool {
	return k.itemCode == o.itemCode && k.quantity.Equal(o.quantity)
}

// FindPotentialMatches は品目コードが一致し数量だけが異なる組み合わせを、数量差の小さい順に返します。
// 手動マッピングの参考情報であり、永続化はしません。
func (e *Engine) FindPotentialMatches(ej []model.OrderRecord, rbom []model.OrderDetailRecord) []model.NearMiss {
	matches := make([]model.NearMiss, 0)
	if len(ej) == 0 || len(rbom) == 0 {
		return matches
	}

	byItem := make(map[string][]int)
	for j, rec := range rbom {
		if rec.ItemCode == nil {
			continue
		}
		byItem[*rec.ItemCode] = append(byItem[*rec.ItemCode], j)
	}

	for _, rec := range ej {
		if rec.ItemCode == nil || !rec.Quantity.Valid {
			continue
		}
		for _, j := range byItem[*rec.ItemCode] {
			r := rbom[j]
			if !r.ReceivedQuantity.Valid || rec.Quantity.Decimal.Equal(r.ReceivedQuantity.Decimal) {
				continue
			}
			matches = append(matches, model.NearMiss{
				EJOrderNo:    rec.OrderNo,
				EJItemCode:   *rec.ItemCode,
				EJQuantity:   rec.Quantity.Decimal,
				RBOMOrderNo:  r.OrderNo,
				RBOMLineNo:   r.LineNo,
				RBOMQuantity: r.ReceivedQuantity.Decimal,
				QuantityDiff: rec.Quantity.Decimal.Sub(r.ReceivedQuantity.Decimal).Abs(),
			})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].QuantityDiff.LessThan(matches[b].QuantityDiff)
	})
	return matches
}
