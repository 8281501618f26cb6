package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRenderOrdersColumnsByHeader(t *testing.T) {
	exporter := NewCSVExporter()
	out, err := exporter.Render(Dataset{
		Headers: []string{"ID", "Views"},
		Rows: []map[string]string{
			{"Views": "3", "ID": "a-1"},
			{"ID": "a-2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ID,Views\na-1,3\na-2,\n", string(out))
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRenderProducesDocument(t *testing.T) {
	exporter := NewPDFExporter()
	out, err := exporter.Render(Dataset{
		Headers: []string{"ID", "Views"},
		Rows:    []map[string]string{{"ID": "a-1", "Views": "3"}},
	}, "Engagement")
	require.NoError(t, err)
	assert.True(t, len(out) > 0)
	assert.Equal(t, "%PDF", string(out[:4]))
}
