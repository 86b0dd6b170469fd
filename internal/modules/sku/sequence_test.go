package sku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		customKeys []string
		wantErr    bool
	}{
		{name: "all builtin keys", template: "{prefix}{brand}{category}-{sequence}{suffix}", wantErr: false},
		{name: "item key", template: "{item}-{sequence}", wantErr: false},
		{name: "padding alias", template: "{prefix}{padding}", wantErr: false},
		{name: "custom key declared", template: "{prefix}-{color}-{sequence}", customKeys: []string{"color"}, wantErr: false},
		{name: "unknown key rejected", template: "{prefix}-{color}-{sequence}", wantErr: true},
		{name: "empty template rejected", template: "   ", wantErr: true},
		{name: "literal text only", template: "SKU", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplate(tt.template, tt.customKeys)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSequenceRender(t *testing.T) {
	seq := &Sequence{
		Prefix:         "RNT",
		Suffix:         "-EU",
		PaddingLength:  5,
		FormatTemplate: "{prefix}-{brand}-{category}-{sequence}{suffix}",
	}

	sku := seq.Render(42, RenderArgs{BrandCode: "BOS", CategoryCode: "DRL"})
	assert.Equal(t, "RNT-BOS-DRL-00042-EU", sku)
}

func TestSequenceRenderPaddingDoesNotTruncate(t *testing.T) {
	seq := &Sequence{PaddingLength: 3, FormatTemplate: "{sequence}"}
	assert.Equal(t, "12345", seq.Render(12345, RenderArgs{}))
}

func TestSequenceRenderItemAndCustomKeys(t *testing.T) {
	seq := &Sequence{
		PaddingLength:  4,
		FormatTemplate: "{item}-{color}-{sequence}",
	}

	sku := seq.Render(7, RenderArgs{
		ItemName: "Angle Grinder 900W",
		Custom:   map[string]string{"color": "BLU"},
	})

	require.Equal(t, "ANGLEGRI-BLU-0007", sku)
}

func TestSanitizeItemName(t *testing.T) {
	assert.Equal(t, "ANGLEGRI", sanitizeItemName("Angle Grinder 900W"))
	assert.Equal(t, "X12", sanitizeItemName("x-1 2"))
	assert.Equal(t, "", sanitizeItemName("---"))
}
