package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	data := Dataset{
		Headers: []string{"Participant", "Statut"},
		Rows: []map[string]string{
			{"Participant": "Yasmine El Amrani", "Statut": "ENROLLED"},
			{"Participant": "Omar, Benali", "Statut": "PENDING"},
		},
	}

	content, err := exporter.Render(data)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Participant,Statut\n")
	assert.Contains(t, string(content), "Yasmine El Amrani,ENROLLED\n")
	// Values containing the delimiter must be quoted.
	assert.Contains(t, string(content), `"Omar, Benali",PENDING`)
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	exporter := NewPDFExporter()
	data := Dataset{
		Headers: []string{"Participant", "Absences"},
		Rows: []map[string]string{
			{"Participant": "Yasmine El Amrani", "Absences": "2"},
		},
	}

	content, err := exporter.Render(data, "Feuille de presence")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("%PDF")))
}

func TestPDFExporterRequiresHeaders(t *testing.T) {
	exporter := NewPDFExporter()
	_, err := exporter.Render(Dataset{}, "")
	require.Error(t, err)
}
