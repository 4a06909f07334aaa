// Package mps reads MPS files into models. Both fixed and free format
// are accepted by tokenizing on whitespace; bzip2-compressed files are
// transparently decompressed.
package mps

import (
	"bufio"
	"compress/bzip2"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mbellec/optlab/internal/model"
)

type rowKind byte

const (
	rowObjective rowKind = 'N'
	rowLess      rowKind = 'L'
	rowGreater   rowKind = 'G'
	rowEqual     rowKind = 'E'
)

type row struct {
	name  string
	kind  rowKind
	rhs   float64
	rng   float64
	hasRg bool
	vars  []*model.Variable
	coefs []float64
}

type column struct {
	v       *model.Variable
	integer bool
	// explicit tracks which bound sides a BOUNDS entry has touched.
	hasLower bool
	hasUpper bool
}

// ReadFile parses an MPS file. Files ending in .bz2 are decompressed on
// the fly.
func ReadFile(path string) (*model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mps: opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(f)
	}
	m, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("mps: %s: %w", path, err)
	}
	return m, nil
}

// Read parses MPS data from a reader.
func Read(r io.Reader) (*model.Model, error) {
	p := &parser{
		m:    model.New("", model.Minimize),
		cols: map[string]*column{},
		rows: map[string]*row{},
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "*") {
			continue
		}
		if err := p.handle(text); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mps: reading input: %w", err)
	}
	if !p.sawEnd {
		return nil, fmt.Errorf("mps: missing ENDATA")
	}
	return p.finish()
}

type parser struct {
	m       *model.Model
	line    int
	section string
	sawEnd  bool
	intOrg  bool

	objName  string
	rowOrder []*row
	rows     map[string]*row
	colOrder []*column
	cols     map[string]*column
}

func (p *parser) errf(format string, args ...interface{}) error {
	return fmt.Errorf("mps: line %d: %s", p.line, fmt.Sprintf(format, args...))
}

func (p *parser) handle(text string) error {
	fields := strings.Fields(text)
	// Section headers start in column one.
	if !strings.HasPrefix(text, " ") && !strings.HasPrefix(text, "\t") {
		switch strings.ToUpper(fields[0]) {
		case "NAME":
			if len(fields) > 1 {
				p.m = model.New(fields[1], p.m.Sense())
			}
			p.section = ""
		case "OBJSENSE":
			p.section = "OBJSENSE"
			// The sense may follow on the same line.
			if len(fields) > 1 {
				return p.setSense(fields[1])
			}
		case "ROWS", "COLUMNS", "RHS", "RANGES", "BOUNDS":
			p.section = strings.ToUpper(fields[0])
		case "ENDATA":
			p.sawEnd = true
			p.section = ""
		default:
			return p.errf("unknown section %q", fields[0])
		}
		return nil
	}

	switch p.section {
	case "OBJSENSE":
		return p.setSense(fields[0])
	case "ROWS":
		return p.addRow(fields)
	case "COLUMNS":
		return p.addColumnEntries(fields)
	case "RHS":
		return p.addRHS(fields)
	case "RANGES":
		return p.addRange(fields)
	case "BOUNDS":
		return p.addBound(fields)
	case "":
		return p.errf("data outside any section")
	}
	return nil
}

func (p *parser) setSense(tok string) error {
	switch strings.ToUpper(tok) {
	case "MAX", "MAXIMIZE":
		p.m = model.New(p.m.Name(), model.Maximize)
	case "MIN", "MINIMIZE":
	default:
		return p.errf("unknown objective sense %q", tok)
	}
	return nil
}

func (p *parser) addRow(fields []string) error {
	if len(fields) != 2 {
		return p.errf("ROWS entry needs a type and a name, got %d fields", len(fields))
	}
	kind := rowKind(strings.ToUpper(fields[0])[0])
	name := fields[1]
	switch kind {
	case rowObjective:
		// The first N row is the objective; later ones are free rows
		// and are dropped.
		if p.objName == "" {
			p.objName = name
		}
		return nil
	case rowLess, rowGreater, rowEqual:
	default:
		return p.errf("unknown row type %q", fields[0])
	}
	if _, ok := p.rows[name]; ok {
		return p.errf("duplicate row %q", name)
	}
	r := &row{name: name, kind: kind}
	p.rows[name] = r
	p.rowOrder = append(p.rowOrder, r)
	return nil
}

func (p *parser) addColumnEntries(fields []string) error {
	// Integer markers bracket runs of integer columns.
	if len(fields) >= 3 && strings.Trim(fields[1], "'") == "MARKER" {
		switch strings.Trim(fields[2], "'") {
		case "INTORG":
			p.intOrg = true
		case "INTEND":
			p.intOrg = false
		default:
			return p.errf("unknown marker %q", fields[2])
		}
		return nil
	}
	if len(fields) != 3 && len(fields) != 5 {
		return p.errf("COLUMNS entry needs 1 or 2 row/value pairs, got %d fields", len(fields))
	}
	col, err := p.column(fields[0])
	if err != nil {
		return err
	}
	for i := 1; i < len(fields); i += 2 {
		val, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return p.errf("bad coefficient %q", fields[i+1])
		}
		rowName := fields[i]
		if rowName == p.objName {
			col.v.SetCost(val)
			continue
		}
		r, ok := p.rows[rowName]
		if !ok {
			return p.errf("unknown row %q", rowName)
		}
		r.vars = append(r.vars, col.v)
		r.coefs = append(r.coefs, val)
	}
	return nil
}

func (p *parser) column(name string) (*column, error) {
	if c, ok := p.cols[name]; ok {
		if c.integer != p.intOrg {
			return nil, p.errf("column %q reappears with a different integrality", name)
		}
		return c, nil
	}
	typ := model.Continuous
	if p.intOrg {
		typ = model.Integer
	}
	v, err := p.m.AddDefinedVariable(name, typ, 0, 0, math.Inf(1))
	if err != nil {
		return nil, p.errf("adding column %q: %v", name, err)
	}
	c := &column{v: v, integer: p.intOrg}
	p.cols[name] = c
	p.colOrder = append(p.colOrder, c)
	return c, nil
}

func (p *parser) addRHS(fields []string) error {
	if len(fields) != 3 && len(fields) != 5 {
		return p.errf("RHS entry needs 1 or 2 row/value pairs, got %d fields", len(fields))
	}
	for i := 1; i < len(fields); i += 2 {
		val, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return p.errf("bad RHS value %q", fields[i+1])
		}
		rowName := fields[i]
		if rowName == p.objName {
			// An objective RHS is a negated constant term.
			p.m.SetOffset(-val)
			continue
		}
		r, ok := p.rows[rowName]
		if !ok {
			return p.errf("unknown row %q", rowName)
		}
		r.rhs = val
	}
	return nil
}

func (p *parser) addRange(fields []string) error {
	if len(fields) != 3 && len(fields) != 5 {
		return p.errf("RANGES entry needs 1 or 2 row/value pairs, got %d fields", len(fields))
	}
	for i := 1; i < len(fields); i += 2 {
		val, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return p.errf("bad range value %q", fields[i+1])
		}
		r, ok := p.rows[fields[i]]
		if !ok {
			return p.errf("unknown row %q", fields[i])
		}
		r.rng = val
		r.hasRg = true
	}
	return nil
}

func (p *parser) addBound(fields []string) error {
	if len(fields) < 3 {
		return p.errf("BOUNDS entry needs a type, a set name and a column")
	}
	kind := strings.ToUpper(fields[0])
	col, ok := p.cols[fields[2]]
	if !ok {
		return p.errf("unknown column %q", fields[2])
	}
	needsValue := map[string]bool{"UP": true, "LO": true, "FX": true, "LI": true, "UI": true}
	val := 0.0
	if needsValue[kind] {
		if len(fields) < 4 {
			return p.errf("%s bound on %q needs a value", kind, fields[2])
		}
		v, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return p.errf("bad bound value %q", fields[3])
		}
		val = v
	}

	c := col.v.Index()
	lower, upper := p.m.Columns()[c].Lower, p.m.Columns()[c].Upper
	switch kind {
	case "UP":
		upper = val
		// A bare negative upper bound frees the lower bound, per MPS
		// convention.
		if val < 0 && !col.hasLower {
			lower = math.Inf(-1)
		}
		col.hasUpper = true
	case "LO":
		lower = val
		col.hasLower = true
	case "FX":
		lower, upper = val, val
		col.hasLower, col.hasUpper = true, true
	case "FR":
		lower, upper = math.Inf(-1), math.Inf(1)
		col.hasLower, col.hasUpper = true, true
	case "MI":
		lower = math.Inf(-1)
		col.hasLower = true
	case "PL":
		upper = math.Inf(1)
		col.hasUpper = true
	case "BV":
		col.integer = true
		col.v.SetType(model.Binary)
		lower, upper = 0, 1
		col.hasLower, col.hasUpper = true, true
	case "LI":
		col.integer = true
		col.v.SetType(model.Integer)
		lower = val
		col.hasLower = true
	case "UI":
		col.integer = true
		col.v.SetType(model.Integer)
		upper = val
		col.hasUpper = true
	default:
		return p.errf("unknown bound type %q", kind)
	}
	col.v.SetBounds(lower, upper)
	return nil
}

// finish materializes the parsed rows as model constraints.
func (p *parser) finish() (*model.Model, error) {
	for _, r := range p.rowOrder {
		lower, upper := r.bounds()
		if err := p.m.AddConstraint(r.name, lower, upper, r.vars, r.coefs); err != nil {
			return nil, fmt.Errorf("mps: row %q: %w", r.name, err)
		}
	}
	if err := p.m.Validate(); err != nil {
		return nil, fmt.Errorf("mps: %w", err)
	}
	return p.m, nil
}

// bounds converts the row type, RHS and optional range into the
// [lower, upper] form the model uses.
func (r *row) bounds() (float64, float64) {
	switch r.kind {
	case rowLess:
		if r.hasRg {
			return r.rhs - math.Abs(r.rng), r.rhs
		}
		return math.Inf(-1), r.rhs
	case rowGreater:
		if r.hasRg {
			return r.rhs, r.rhs + math.Abs(r.rng)
		}
		return r.rhs, math.Inf(1)
	default: // rowEqual
		if r.hasRg {
			if r.rng >= 0 {
				return r.rhs, r.rhs + r.rng
			}
			return r.rhs + r.rng, r.rhs
		}
		return r.rhs, r.rhs
	}
}
