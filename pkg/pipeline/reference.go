package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// ReferenceEntry is one row of the ingredient reference table.
type ReferenceEntry struct {
	Name   string
	NameLC string
	Impact float64
}

// ReferenceTable is a precompiled, read-only substring index over the
// reference rows. Built once at load; safe to share across concurrent
// requests without locking.
type ReferenceTable struct {
	entries   []ReferenceEntry
	hasImpact bool
}

// LoadReferenceCSV reads the reference table: the first column is the
// ingredient name, an optional "impact" column (matched by header,
// case-insensitive) carries the weight. Short or malformed rows are skipped,
// not fatal; a file with no usable rows still loads as an empty table.
func LoadReferenceCSV(path string) (*ReferenceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse reference table: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reference table %s is empty", path)
	}

	header := records[0]
	impactCol := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "impact") {
			impactCol = i
		}
	}

	t := &ReferenceTable{hasImpact: impactCol >= 0}
	for _, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		if name == "" {
			continue
		}
		e := ReferenceEntry{Name: name, NameLC: strings.ToLower(name)}
		if impactCol >= 0 && impactCol < len(rec) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(rec[impactCol]), 64); err == nil {
				e.Impact = v
			}
		}
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// Len reports the number of indexed rows.
func (t *ReferenceTable) Len() int { return len(t.entries) }

// HasImpact reports whether the table carries impact weights.
func (t *ReferenceTable) HasImpact() bool { return t.hasImpact }

// Match collects every entry whose name contains the lowercased token.
// Returned names keep their original casing and table order. impact is the
// sum over all matched rows; anyImpact is false when the table has no impact
// column or nothing matched.
func (t *ReferenceTable) Match(tokenLC string) (names []string, impact float64, anyImpact bool) {
	if tokenLC == "" {
		return nil, 0, false
	}
	for _, e := range t.entries {
		if strings.Contains(e.NameLC, tokenLC) {
			names = append(names, e.Name)
			impact += e.Impact
			anyImpact = t.hasImpact
		}
	}
	return names, impact, anyImpact
}

// TableStore holds the active reference table behind an atomic pointer so a
// watcher can swap in a reloaded table while requests read snapshots. A nil
// current table means "run with built-in fallbacks".
type TableStore struct {
	p atomic.Pointer[ReferenceTable]
}

// Current returns the active table snapshot, possibly nil.
func (s *TableStore) Current() *ReferenceTable {
	if s == nil {
		return nil
	}
	return s.p.Load()
}

// Swap replaces the active table.
func (s *TableStore) Swap(t *ReferenceTable) { s.p.Store(t) }
