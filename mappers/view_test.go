package mappers

import (
	"testing"

	"ejrbom/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatOrderLine(t *testing.T) {
	assert.Equal(t, "000000123+001", FormatOrderLine(model.StringPtr("123"), model.Int64Ptr(1)))
	assert.Equal(t, "1234567890+1000", FormatOrderLine(model.StringPtr("1234567890"), model.Int64Ptr(1000)))
	assert.Equal(t, "", FormatOrderLine(nil, model.Int64Ptr(1)))
	assert.Equal(t, "", FormatOrderLine(model.StringPtr("123"), nil))
}

func TestParseOrderLine(t *testing.T) {
	order, line, err := ParseOrderLine("000000123+012")
	require.NoError(t, err)
	assert.Equal(t, "000000123", order)
	assert.Equal(t, int64(12), line)

	for _, bad := range []string{"", "123", "+1", "123+", "123+x"} {
		_, _, err := ParseOrderLine(bad)
		assert.ErrorIs(t, err, model.ErrInvalidKey, bad)
	}
}

func TestConvertToView(t *testing.T) {
	rows := []model.MappingRow{
		{EJOrderNo: model.StringPtr("PO1"), RBOMOrderNo: model.StringPtr("55"), RBOMLineNo: model.Int64Ptr(2), Classification: model.ClassificationManual, IsFixed: true},
		{EJOrderNo: model.StringPtr("PO2"), Classification: model.ClassificationAuto},
		{RBOMOrderNo: model.StringPtr("77"), RBOMLineNo: model.Int64Ptr(3), Classification: model.ClassificationAuto},
	}
	views := ConvertToView(rows)
	require.Len(t, views, 3)

	assert.Equal(t, "000000055+002", views[0].RBOMOrderLine)
	assert.Equal(t, "MATCHED", views[0].Status)
	assert.Equal(t, "手動", views[0].MappingTypeLabel)
	assert.Equal(t, "PO1-55-2", views[0].RowKey)

	assert.Equal(t, "", views[1].RBOMOrderLine)
	assert.Equal(t, "EJ_ONLY", views[1].Status)
	assert.Equal(t, "自動", views[1].MappingTypeLabel)

	assert.Equal(t, "RBOM_ONLY", views[2].Status)
	assert.Equal(t, "NULL-77-3", views[2].RowKey)

	assert.NotNil(t, ConvertToView(nil))
}

func TestFindByDisplayKey(t *testing.T) {
	rows := []model.MappingRow{
		{EJOrderNo: model.StringPtr("PO1"), RBOMOrderNo: model.StringPtr("55"), RBOMLineNo: model.Int64Ptr(2)},
		{EJOrderNo: model.StringPtr("PO1")},
		{RBOMOrderNo: model.StringPtr("77"), RBOMLineNo: model.Int64Ptr(3)},
	}

	row, ok := FindByDisplayKey(rows, "PO1", "000000055+002")
	require.True(t, ok)
	assert.Equal(t, "55", *row.RBOMOrderNo)

	row, ok = FindByDisplayKey(rows, "PO1", "")
	require.True(t, ok)
	assert.Nil(t, row.RBOMOrderNo)

	row, ok = FindByDisplayKey(rows, "", "000000077+003")
	require.True(t, ok)
	assert.Nil(t, row.EJOrderNo)

	_, ok = FindByDisplayKey(rows, "PO1", "55+2")
	assert.False(t, ok)
	_, ok = FindByDisplayKey(rows, "PO1", "garbage")
	assert.False(t, ok)
}
