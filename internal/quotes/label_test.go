package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabelData_Sticker(t *testing.T) {
	raw := `{"kind":"sticker","sticker":{"material":"vinyl","cut_type":"kiss","laminated":true}}`
	l, err := ParseLabelData(raw)
	require.NoError(t, err)
	assert.Equal(t, LabelKindSticker, l.Kind)
	require.NotNil(t, l.Sticker)
	assert.True(t, l.Sticker.Laminated)
}

func TestParseLabelData_UnknownKind(t *testing.T) {
	_, err := ParseLabelData(`{"kind":"embroidery"}`)
	assert.Error(t, err)
}

func TestParseLabelData_KindPayloadMismatch(t *testing.T) {
	_, err := ParseLabelData(`{"kind":"laser","sticker":{"material":"vinyl"}}`)
	assert.Error(t, err)
}

func TestParseLabelData_AutomotiveCoverage(t *testing.T) {
	_, err := ParseLabelData(`{"kind":"automotive","automotive":{"vehicle_model":"Fiorino","coverage":"roof"}}`)
	assert.Error(t, err)

	l, err := ParseLabelData(`{"kind":"automotive","automotive":{"vehicle_model":"Fiorino","coverage":"partial"}}`)
	require.NoError(t, err)
	assert.Equal(t, "partial", l.Automotive.Coverage)
}
