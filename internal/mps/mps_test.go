package mps

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbellec/optlab/internal/model"
)

func TestReadFileSample(t *testing.T) {
	m, err := ReadFile(filepath.Join("testdata", "sample.mps"))
	require.NoError(t, err)
	checkSample(t, m)
}

func TestReadFileBzip2(t *testing.T) {
	m, err := ReadFile(filepath.Join("testdata", "sample_bz2.mps.bz2"))
	require.NoError(t, err)
	checkSample(t, m)
}

func checkSample(t *testing.T, m *model.Model) {
	t.Helper()
	assert.Equal(t, "SAMPLE", m.Name())
	assert.Equal(t, model.Minimize, m.Sense())
	require.Equal(t, 3, m.NumVariables())
	require.Equal(t, 3, m.NumConstraints())
	assert.True(t, m.IsMIP())

	cols := m.Columns()
	assert.Equal(t, "X1", cols[0].Name)
	assert.Equal(t, model.Continuous, cols[0].Type)
	assert.Equal(t, 2.0, cols[0].Cost)
	assert.Equal(t, 0.0, cols[0].Lower)
	assert.Equal(t, 8.0, cols[0].Upper)

	assert.Equal(t, model.Integer, cols[1].Type)
	assert.Equal(t, 5.0, cols[1].Cost)
	assert.Equal(t, 3.0, cols[1].Upper)

	assert.Equal(t, model.Continuous, cols[2].Type)
	assert.Equal(t, -1.0, cols[2].Cost)
	assert.True(t, math.IsInf(cols[2].Lower, -1))
	assert.True(t, math.IsInf(cols[2].Upper, 1))

	rows := m.Rows()
	// CAP is an L row narrowed by a range of 2.
	assert.Equal(t, "CAP", rows[0].Name)
	assert.Equal(t, 10.0, rows[0].Lower)
	assert.Equal(t, 12.0, rows[0].Upper)
	// MINPROD is a plain G row.
	assert.Equal(t, 1.0, rows[1].Lower)
	assert.True(t, math.IsInf(rows[1].Upper, 1))
	// BAL is an equality.
	assert.Equal(t, 4.0, rows[2].Lower)
	assert.Equal(t, 4.0, rows[2].Upper)

	// X1 contributes to CAP and BAL, X2 to CAP and MINPROD, X3 to BAL.
	act, err := m.RowActivity([]float64{2, 1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 2*3.0+1*4.0, act[0], 1e-12)
	assert.InDelta(t, 1.0, act[1], 1e-12)
	assert.InDelta(t, 4.0, act[2], 1e-12)
}

func TestReadObjsenseAndOffset(t *testing.T) {
	src := `NAME MAXPROB
OBJSENSE
    MAX
ROWS
 N  OBJ
 L  C1
COLUMNS
    X         OBJ       3.0        C1        1.0
RHS
    RHS       C1        5.0        OBJ       2.0
ENDATA
`
	m, err := Read(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, model.Maximize, m.Sense())
	assert.Equal(t, -2.0, m.Offset())

	obj, err := m.ObjectiveValue([]float64{4})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, obj, 1e-12)
}

func TestReadBoundTypes(t *testing.T) {
	src := `NAME BOUNDS
ROWS
 N  OBJ
 G  C1
COLUMNS
    A         C1        1.0
    B         C1        1.0
    C         C1        1.0
    D         C1        1.0
RHS
    RHS       C1        1.0
BOUNDS
 FX BND       A         2.5
 MI BND       B
 BV BND       C
 UP BND       D        -1.0
ENDATA
`
	m, err := Read(strings.NewReader(src))
	require.NoError(t, err)
	cols := m.Columns()

	assert.Equal(t, 2.5, cols[0].Lower)
	assert.Equal(t, 2.5, cols[0].Upper)

	assert.True(t, math.IsInf(cols[1].Lower, -1))

	assert.Equal(t, model.Binary, cols[2].Type)
	assert.Equal(t, 1.0, cols[2].Upper)

	// A bare negative upper bound frees the lower bound.
	assert.True(t, math.IsInf(cols[3].Lower, -1))
	assert.Equal(t, -1.0, cols[3].Upper)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "missing endata",
			src:     "NAME X\nROWS\n N OBJ\n",
			wantErr: "missing ENDATA",
		},
		{
			name:    "unknown section",
			src:     "WHAT\nENDATA\n",
			wantErr: `unknown section "WHAT"`,
		},
		{
			name:    "data outside section",
			src:     " L C1\nENDATA\n",
			wantErr: "line 1: data outside any section",
		},
		{
			name:    "bad row type",
			src:     "ROWS\n Q C1\nENDATA\n",
			wantErr: `line 2: unknown row type "Q"`,
		},
		{
			name:    "duplicate row",
			src:     "ROWS\n L C1\n L C1\nENDATA\n",
			wantErr: `duplicate row "C1"`,
		},
		{
			name:    "unknown row in columns",
			src:     "ROWS\n N OBJ\nCOLUMNS\n X NOPE 1.0\nENDATA\n",
			wantErr: `line 4: unknown row "NOPE"`,
		},
		{
			name:    "bad coefficient",
			src:     "ROWS\n N OBJ\nCOLUMNS\n X OBJ abc\nENDATA\n",
			wantErr: `bad coefficient "abc"`,
		},
		{
			name:    "unknown bound column",
			src:     "ROWS\n N OBJ\nBOUNDS\n UP BND NOPE 1.0\nENDATA\n",
			wantErr: `unknown column "NOPE"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join("testdata", "nope.mps"))
	assert.ErrorContains(t, err, "opening")
}
