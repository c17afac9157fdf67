package reconcile

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"ejrbom/loader"
	"ejrbom/matching"
	"ejrbom/model"
	"ejrbom/sources"
	"ejrbom/store"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEJ struct {
	recs  []model.OrderRecord
	err   error
	calls int
}

func (f *fakeEJ) FetchBacklog(ctx context.Context, r sources.DateRange) ([]model.OrderRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.recs, nil
}

func (f *fakeEJ) Ping(ctx context.Context) error { return f.err }

type fakeRBOM struct {
	recs  []model.OrderDetailRecord
	err   error
	calls int
}

func (f *fakeRBOM) FetchOrderDetails(ctx context.Context, r sources.DateRange) ([]model.OrderDetailRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.recs, nil
}

func (f *fakeRBOM) Ping(ctx context.Context) error { return f.err }

func qty(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func ej(order, item, q string) model.OrderRecord {
	return model.OrderRecord{OrderNo: order, ItemCode: model.StringPtr(item), Quantity: qty(q)}
}

func rb(order string, line int64, item, q string) model.OrderDetailRecord {
	return model.OrderDetailRecord{OrderNo: order, LineNo: line, ItemCode: model.StringPtr(item), ReceivedQuantity: qty(q)}
}

type fixture struct {
	svc   *Service
	store *store.Store
	ej    *fakeEJ
	rbom  *fakeRBOM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := loader.OpenDatabase(filepath.Join(t.TempDir(), "mapping.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, loader.InitDatabase(db, log))

	st := store.New(db, log)
	f := &fixture{
		store: st,
		ej: &fakeEJ{recs: []model.OrderRecord{
			ej("PO1", "A", "10"),
			ej("PO2", "B", "5"),
		}},
		rbom: &fakeRBOM{recs: []model.OrderDetailRecord{
			rb("R1", 1, "A", "10"),
			rb("R2", 1, "B", "4"),
		}},
	}
	f.svc = NewService(f.ej, f.rbom, st, matching.NewEngine(log), sources.DefaultCutoff, log)
	return f
}

func julyRange(t *testing.T) sources.DateRange {
	r, err := sources.ParseDateRange("2025-07-01", "2025-07-31")
	require.NoError(t, err)
	return r
}

func keyOf(ejOrder string, rbomOrder string, line int64) model.MappingKey {
	k := model.MappingKey{EJOrderNo: model.StringPtr(ejOrder)}
	if rbomOrder != "" {
		k.RBOMOrderNo = model.StringPtr(rbomOrder)
		k.RBOMLineNo = model.Int64Ptr(line)
	}
	return k
}

func TestRunPersistsSnapshotAndExtractionCondition(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.EJCount)
	assert.Equal(t, 2, res.RBOMCount)
	assert.Equal(t, 1, res.Statistics.MatchedCount)
	assert.Equal(t, 1, res.Statistics.EJOnlyCount)
	assert.Equal(t, 1, res.Statistics.RBOMOnlyCount)

	rows, err := f.store.GetResultSnapshot()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	conds, err := f.store.GetExtractionConditions(10)
	require.NoError(t, err)
	require.Len(t, conds, 1)
	assert.Equal(t, res.RunID, conds[0].RunID)
	assert.Equal(t, "2025-07-01", conds[0].DeliveryDateFrom)
	assert.Equal(t, "2025-07-31", conds[0].DeliveryDateTo)
}

func TestRunRejectsBeforeCutoffWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)
	before, err := f.store.GetResultSnapshot()
	require.NoError(t, err)

	r, err := sources.ParseDateRange("2025-06-01", "2025-07-31")
	require.NoError(t, err)
	_, err = f.svc.Run(context.Background(), r, "")
	assert.ErrorIs(t, err, sources.ErrBeforeCutoff)
	assert.Equal(t, 1, f.ej.calls)

	after, err := f.store.GetResultSnapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunSourceFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)
	before, err := f.store.GetResultSnapshot()
	require.NoError(t, err)

	f.rbom.err = fmt.Errorf("%w: connection refused", sources.ErrSourceUnavailable)
	_, err = f.svc.Run(context.Background(), julyRange(t), "")
	assert.ErrorIs(t, err, sources.ErrSourceUnavailable)

	after, err := f.store.GetResultSnapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	conds, err := f.store.GetExtractionConditions(10)
	require.NoError(t, err)
	assert.Len(t, conds, 1)
}

func TestSessionCommitPinsAndSurvivesRerun(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)

	sess, err := f.svc.Session()
	require.NoError(t, err)
	assert.False(t, sess.AllSelected())
	assert.Equal(t, 2, sess.SelectAll(), "matched and EJ-only rows are selectable")
	assert.True(t, sess.AllSelected())

	res, err := f.svc.CommitFixedEdits(sess)
	require.NoError(t, err)
	assert.Equal(t, model.BulkFixedResult{Pinned: 2}, res)
	assert.Empty(t, sess.Changes())

	fixed, err := f.store.GetFixedOverrides()
	require.NoError(t, err)
	assert.Len(t, fixed, 2)

	// 数量が変わっても固定済みの組み合わせはそのまま残る
	f.ej.recs[0] = ej("PO1", "A", "99")
	_, err = f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)

	rows, err := f.store.GetResultSnapshot()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	fixedCount := 0
	for _, r := range rows {
		if r.IsFixed {
			fixedCount++
		}
		if model.Deref(r.EJOrderNo) == "PO1" {
			require.NotNil(t, r.RBOMOrderNo)
			assert.Equal(t, "R1", *r.RBOMOrderNo)
			assert.True(t, r.EJQuantity.Decimal.Equal(decimal.NewFromInt(10)))
		}
	}
	assert.Equal(t, 2, fixedCount)

	sess, err = f.svc.Session()
	require.NoError(t, err)
	require.NoError(t, sess.SetFixed(keyOf("PO2", "", 0), false))
	res, err = f.svc.CommitFixedEdits(sess)
	require.NoError(t, err)
	assert.Equal(t, model.BulkFixedResult{Unpinned: 1}, res)

	fixed, err = f.store.GetFixedOverrides()
	require.NoError(t, err)
	require.Len(t, fixed, 1)
	assert.Equal(t, "PO1", *fixed[0].EJOrderNo)
}

func TestCommitWithoutChangesIsNoop(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)

	sess, err := f.svc.Session()
	require.NoError(t, err)
	res, err := f.svc.CommitFixedEdits(sess)
	require.NoError(t, err)
	assert.Equal(t, model.BulkFixedResult{}, res)
}

func TestManualOverrideIsProtected(t *testing.T) {
	f := newFixture(t)
	manual := model.MappingRow{
		EJOrderNo:    model.StringPtr("PO2"),
		EJItemCode:   model.StringPtr("B"),
		EJQuantity:   qty("5"),
		RBOMOrderNo:  model.StringPtr("R2"),
		RBOMLineNo:   model.Int64Ptr(1),
		RBOMItemCode: model.StringPtr("B"),
		RBOMQuantity: qty("4"),
	}
	require.NoError(t, f.store.SaveManualOverride(manual))

	res, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Statistics.ManualCount)
	assert.Equal(t, 2, res.Statistics.MatchedCount)

	sess, err := f.svc.Session()
	require.NoError(t, err)
	assert.ErrorIs(t, sess.SetFixed(keyOf("PO2", "R2", 1), false), ErrManualRow)
	assert.Equal(t, 1, sess.SelectAll())

	_, err = f.svc.SetFixed(keyOf("PO2", "R2", 1), false)
	assert.ErrorIs(t, err, ErrManualRow)

	rows, err := f.store.GetResultSnapshot()
	require.NoError(t, err)
	for _, r := range rows {
		if r.Classification == model.ClassificationManual {
			assert.True(t, r.IsFixed)
		}
	}
}

func TestServiceSetFixed(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)

	rbomOnly := model.MappingKey{RBOMOrderNo: model.StringPtr("R2"), RBOMLineNo: model.Int64Ptr(1)}
	res, err := f.svc.SetFixed(rbomOnly, true)
	require.NoError(t, err)
	assert.Equal(t, model.BulkFixedResult{Pinned: 1}, res)

	fixed, err := f.store.GetFixedOverrides()
	require.NoError(t, err)
	require.Len(t, fixed, 1)
	assert.Nil(t, fixed[0].EJOrderNo)
	assert.Equal(t, "B", *fixed[0].RBOMItemCode)

	_, err = f.svc.SetFixed(keyOf("PO9", "", 0), true)
	assert.ErrorIs(t, err, store.ErrResultNotFound)
}

func TestNearMissesReuseLastRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), julyRange(t), "")
	require.NoError(t, err)

	misses, err := f.svc.NearMisses(context.Background(), julyRange(t))
	require.NoError(t, err)
	require.Len(t, misses, 1)
	assert.Equal(t, "PO2", misses[0].EJOrderNo)
	assert.Equal(t, "R2", misses[0].RBOMOrderNo)
	assert.True(t, misses[0].QuantityDiff.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, f.ej.calls)

	other, err := sources.ParseDateRange("2025-08-01", "2025-08-31")
	require.NoError(t, err)
	_, err = f.svc.NearMisses(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, f.ej.calls)
}

func TestStatsAndConnections(t *testing.T) {
	f := newFixture(t)
	stats, err := f.svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, model.Statistics{}, stats)

	_, err = f.svc.Run(context.Background(), julyRange(t), "july")
	require.NoError(t, err)
	stats, err = f.svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCount)
	assert.InDelta(t, 50.0, stats.MatchRate, 0.001)

	f.rbom.err = sources.ErrSourceUnavailable
	status := f.svc.TestConnections(context.Background())
	assert.NoError(t, status.EJ)
	assert.ErrorIs(t, status.RBOM, sources.ErrSourceUnavailable)
}
