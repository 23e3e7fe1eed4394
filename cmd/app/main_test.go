package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/beamline/internal/models"
)

func TestPrintHistory(t *testing.T) {
	runs := []models.Run{
		{
			Path:      "/srv/cnc/0123456789ABCD-1234-5678-X.nc1",
			Kind:      models.Created,
			Outcome:   models.OutcomeChanged,
			Steps:     []string{models.StepStrip, models.StepTrimHeader, models.StepRename},
			RenamedTo: "/srv/cnc/ABCD-1234-5678-X.nc1",
			StartedAt: time.Now(),
			Duration:  12 * time.Millisecond,
		},
		{
			Path:      "/srv/cnc/a.idstv",
			Kind:      models.Created,
			Outcome:   models.OutcomeFailed,
			Error:     "retry budget exhausted",
			Retries:   4,
			StartedAt: time.Now(),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, runs))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, strings.ToLower(lines[0]), "outcome")
	assert.Equal(t, "\t", string(lines[1][len(time.DateTime)]), "non-terminal output is tab separated")
	assert.Contains(t, lines[1], "-> ABCD-1234-5678-X.nc1")
	assert.Contains(t, lines[2], "retry budget exhausted")
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, nil))
	assert.Equal(t, "no runs recorded\n", buf.String())
}

func TestPrintIdentifiers(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printIdentifiers(&buf, []string{"W8722-B012-A007", "ABC"})
	out := buf.String()
	assert.Contains(t, out, "rich   W8722-B12-A7")
	assert.Contains(t, out, "legacy W8722B012A7")
	assert.Contains(t, out, "rich   ABC")
}

func TestRenderTableTerminal(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}}, nil, true)
	assert.Contains(t, out, "╭")
	assert.Empty(t, renderTable(nil, nil, nil, true))
}
