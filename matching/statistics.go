package matching

import "ejrbom/model"

// Statistics はマッピング結果の件数とマッチ率を集計します。
// マッチ率は 1 組のマッチが EJ・rBOM の双方を 1 件ずつ消し込むものとして算出します。
func Statistics(rows []model.MappingRow) model.Statistics {
	var s model.Statistics
	for _, row := range rows {
		s.TotalCount++
		if row.Classification == model.ClassificationManual {
			s.ManualCount++
		} else {
			s.AutoCount++
		}
		if row.IsFixed {
			s.FixedCount++
		}
		switch row.Shape() {
		case model.ShapeMatched:
			s.MatchedCount++
		case model.ShapeEJOnly:
			s.EJOnlyCount++
		case model.ShapeRBOMOnly:
			s.RBOMOnlyCount++
		}
	}

	total := (s.MatchedCount + s.EJOnlyCount) + (s.MatchedCount + s.RBOMOnlyCount)
	if total > 0 {
		s.MatchRate = float64(s.MatchedCount*2) / float64(total) * 100.0
	}
	return s
}
