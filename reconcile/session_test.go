package reconcile

import (
	"testing"

	"ejrbom/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionRows() []model.MappingRow {
	return []model.MappingRow{
		{EJOrderNo: model.StringPtr("PO1"), RBOMOrderNo: model.StringPtr("R1"), RBOMLineNo: model.Int64Ptr(1), Classification: model.ClassificationAuto},
		{EJOrderNo: model.StringPtr("PO2"), Classification: model.ClassificationAuto, IsFixed: true},
		{RBOMOrderNo: model.StringPtr("R2"), RBOMLineNo: model.Int64Ptr(1), Classification: model.ClassificationAuto},
		{EJOrderNo: model.StringPtr("PO3"), RBOMOrderNo: model.StringPtr("R3"), RBOMLineNo: model.Int64Ptr(2), Classification: model.ClassificationManual, IsFixed: true},
	}
}

func TestSessionChangesOnlyReportsDiffs(t *testing.T) {
	sess := NewSession(sessionRows())

	require.NoError(t, sess.SetFixed(keyOf("PO1", "R1", 1), true))
	require.NoError(t, sess.SetFixed(keyOf("PO2", "", 0), true))
	require.NoError(t, sess.SetFixed(model.MappingKey{RBOMOrderNo: model.StringPtr("R2"), RBOMLineNo: model.Int64Ptr(1)}, true))

	changes := sess.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, "PO1-R1-1", changes[0].Key.String())
	assert.True(t, changes[0].Fixed)
	assert.True(t, changes[0].Row.IsFixed)
	assert.Equal(t, "NULL-R2-1", changes[1].Key.String())
}

func TestSessionRejectsManualAndUnknownRows(t *testing.T) {
	sess := NewSession(sessionRows())

	assert.ErrorIs(t, sess.SetFixed(keyOf("PO3", "R3", 2), false), ErrManualRow)
	assert.ErrorIs(t, sess.SetFixed(keyOf("PO9", "", 0), true), ErrUnknownRow)
	assert.ErrorIs(t, sess.SetFixed(keyOf("PO1", "", 0), true), ErrUnknownRow)
}

func TestSessionSelectAllSkipsManualAndRBOMOnly(t *testing.T) {
	sess := NewSession(sessionRows())

	assert.Equal(t, 2, sess.SelectAll())
	assert.True(t, sess.AllSelected())

	rows := sess.Rows()
	assert.True(t, rows[0].IsFixed)
	assert.True(t, rows[1].IsFixed)
	assert.False(t, rows[2].IsFixed)
	assert.True(t, rows[3].IsFixed)

	assert.Equal(t, 2, sess.DeselectAll())
	assert.False(t, sess.AllSelected())
	changes := sess.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "PO2-NULL-NULL", changes[0].Key.String())
	assert.False(t, changes[0].Fixed)

	sess.Reset(nil)
	assert.False(t, sess.AllSelected())
	assert.Empty(t, sess.Changes())
}

func TestSessionDistinguishesKeysWithHyphens(t *testing.T) {
	a := model.MappingRow{EJOrderNo: model.StringPtr("A-1"), RBOMOrderNo: model.StringPtr("2"), RBOMLineNo: model.Int64Ptr(3), Classification: model.ClassificationAuto}
	b := model.MappingRow{EJOrderNo: model.StringPtr("A"), RBOMOrderNo: model.StringPtr("1-2"), RBOMLineNo: model.Int64Ptr(3), Classification: model.ClassificationAuto}
	require.Equal(t, a.Key().String(), b.Key().String())

	sess := NewSession([]model.MappingRow{a, b})
	require.NoError(t, sess.SetFixed(a.Key(), true))

	changes := sess.Changes()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Key.Equal(a.Key()))

	rows := sess.Rows()
	assert.True(t, rows[0].IsFixed)
	assert.False(t, rows[1].IsFixed)
}
