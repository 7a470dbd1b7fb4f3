package ixstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Key is an ordered tuple of set-member labels addressing one parameter row.
type Key []string

func (k Key) join() string { return strings.Join(k, "\x1f") }

// Join renders the key as a single lookup token; elements never contain the
// separator because set labels are plain identifiers.
func (k Key) Join() string { return k.join() }

// Clone returns a copy safe to extend with append.
func (k Key) Clone() Key { return append(Key(nil), k...) }

// ParRow is one schema-validated parameter entry.
type ParRow struct {
	Key   Key
	Value float64
	Unit  string
}

// Scenario is a named, versioned container of sets, category mappings and
// parameter tables. It is created empty, populated incrementally, sealed by
// Commit and only then eligible for solving.
type Scenario struct {
	Model   string
	Name    string
	Version int
	ID      string

	mu        sync.RWMutex
	platform  *Platform
	sets      map[string][]string
	setIndex  map[string]map[string]bool
	tuples    map[string][][]string
	cats      map[string]map[string][]string
	pars      map[string][]ParRow
	parIndex  map[string]map[string]bool
	committed bool
	solved    bool
	commitMsg string
	runID     string
}

func newScenario(p *Platform, model, name string, version int, id string) *Scenario {
	s := &Scenario{
		Model:    model,
		Name:     name,
		Version:  version,
		ID:       id,
		platform: p,
		sets:     make(map[string][]string),
		setIndex: make(map[string]map[string]bool),
		tuples:   make(map[string][][]string),
		cats:     make(map[string]map[string][]string),
		pars:     make(map[string][]ParRow),
		parIndex: make(map[string]map[string]bool),
	}
	// Defaults: the sub-annual time set collapses to a single "year" slice,
	// and the "all" technology category tracks every technology as it is
	// declared.
	s.sets["time"] = []string{"year"}
	s.setIndex["time"] = map[string]bool{"year": true}
	s.cats["technology"] = map[string][]string{"all": nil}
	return s
}

// Committed reports whether the scenario has been sealed.
func (s *Scenario) Committed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// Solved reports whether solve results have been attached.
func (s *Scenario) Solved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.solved
}

// RunID returns the identifier of the attached solve run, if any.
func (s *Scenario) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// AddSet declares members of an index set.
func (s *Scenario) AddSet(name string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return fmt.Errorf("add set %s: %w", name, ErrAlreadyCommitted)
	}
	if !indexSets[name] {
		return &SchemaError{Item: name, Msg: "unknown index set"}
	}
	idx := s.setIndex[name]
	if idx == nil {
		idx = make(map[string]bool)
		s.setIndex[name] = idx
	}
	for _, m := range members {
		if idx[m] {
			continue
		}
		idx[m] = true
		s.sets[name] = append(s.sets[name], m)
		if name == "technology" {
			s.cats["technology"]["all"] = append(s.cats["technology"]["all"], m)
		}
	}
	return nil
}

// AddTuple declares one member of a mapping set, validated element-wise
// against the index sets of the mapping-set schema.
func (s *Scenario) AddTuple(name string, tuple ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return fmt.Errorf("add tuple %s: %w", name, ErrAlreadyCommitted)
	}
	schema, ok := tupleSetSchemas[name]
	if !ok {
		return &SchemaError{Item: name, Msg: "unknown mapping set"}
	}
	if len(tuple) != len(schema) {
		return &SchemaError{Item: name, Msg: fmt.Sprintf("key arity %d, schema expects %d", len(tuple), len(schema))}
	}
	for i, d := range schema {
		if !s.setIndex[d.Ref][tuple[i]] {
			return &RefError{Item: name, Dim: d.Name, Label: tuple[i], Ref: d.Ref}
		}
	}
	s.tuples[name] = append(s.tuples[name], append([]string(nil), tuple...))
	return nil
}

// AddSpatialSets declares the node hierarchy: a parent region plus its
// member nodes, recorded in map_spatial_hierarchy for aggregation.
func (s *Scenario) AddSpatialSets(parent string, nodes ...string) error {
	if err := s.AddSet("node", append([]string{parent}, nodes...)...); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := s.AddTuple("map_spatial_hierarchy", parent, n); err != nil {
			return err
		}
	}
	return nil
}

// AddCat maps members of a set into a named category. Category members must
// have been declared in the underlying set first.
func (s *Scenario) AddCat(setName, category string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return fmt.Errorf("add cat %s/%s: %w", setName, category, ErrAlreadyCommitted)
	}
	if !indexSets[setName] {
		return &SchemaError{Item: setName, Msg: "unknown index set"}
	}
	for _, m := range members {
		if !s.setIndex[setName][m] {
			return &RefError{Item: "cat_" + setName, Dim: setName, Label: m, Ref: setName}
		}
	}
	byCat := s.cats[setName]
	if byCat == nil {
		byCat = make(map[string][]string)
		s.cats[setName] = byCat
	}
	byCat[category] = append(byCat[category], members...)
	return nil
}

// AddPar inserts one parameter row after validating the key against the
// parameter schema. Keys are write-once; a second row for the same key is a
// DuplicateError.
func (s *Scenario) AddPar(name string, key Key, value float64, unit string) error {
	return s.AddParRows(name, []ParRow{{Key: key, Value: value, Unit: unit}})
}

// AddParRows inserts a batch of parameter rows, validating each one.
func (s *Scenario) AddParRows(name string, rows []ParRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return fmt.Errorf("add par %s: %w", name, ErrAlreadyCommitted)
	}
	schema, ok := parSchemas[name]
	if !ok {
		return &SchemaError{Item: name, Msg: "unknown parameter"}
	}
	idx := s.parIndex[name]
	if idx == nil {
		idx = make(map[string]bool)
		s.parIndex[name] = idx
	}
	for _, r := range rows {
		if len(r.Key) != len(schema) {
			return &SchemaError{Item: name, Msg: fmt.Sprintf("key arity %d, schema expects %d", len(r.Key), len(schema))}
		}
		for i, d := range schema {
			label := r.Key[i]
			switch d.Kind {
			case RefSet:
				if !s.setIndex[d.Ref][label] {
					return &RefError{Item: name, Dim: d.Name, Label: label, Ref: d.Ref}
				}
			case RefCat:
				if _, ok := s.cats[d.Ref][label]; !ok {
					return &RefError{Item: name, Dim: d.Name, Label: label, Ref: "cat_" + d.Ref}
				}
			}
		}
		joined := r.Key.join()
		if idx[joined] {
			return &DuplicateError{Par: name, Key: r.Key}
		}
		idx[joined] = true
		s.pars[name] = append(s.pars[name], ParRow{Key: append(Key(nil), r.Key...), Value: r.Value, Unit: r.Unit})
	}
	return nil
}

// Commit seals the scenario and persists it through the platform backend.
// A scenario without node and year members is not a solvable model and is
// rejected rather than sealed half-built.
func (s *Scenario) Commit(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return fmt.Errorf("commit %s/%s#%d: %w", s.Model, s.Name, s.Version, ErrAlreadyCommitted)
	}
	if len(s.sets["node"]) == 0 || len(s.sets["year"]) == 0 {
		return &SchemaError{Item: "commit", Msg: "scenario is missing node or year members"}
	}
	s.committed = true
	s.commitMsg = message
	if err := s.platform.backend.save(ctx, s); err != nil {
		s.committed = false
		s.commitMsg = ""
		return fmt.Errorf("commit %s/%s#%d: %w", s.Model, s.Name, s.Version, err)
	}
	log.Debug().Str("model", s.Model).Str("scenario", s.Name).Int("version", s.Version).
		Str("message", message).Msg("scenario committed")
	return nil
}

// CheckOut reopens a committed scenario for editing. A scenario with solve
// results stays sealed so results remain attributable to the exact inputs.
func (s *Scenario) CheckOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.committed {
		return fmt.Errorf("check out: %w", ErrNotCommitted)
	}
	if s.solved {
		return fmt.Errorf("check out: %w", ErrAlreadySolved)
	}
	s.committed = false
	return nil
}

// MarkSolved attaches a solve run to the scenario. Only committed scenarios
// can be solved, and only once.
func (s *Scenario) MarkSolved(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.committed {
		return fmt.Errorf("mark solved: %w", ErrNotCommitted)
	}
	if s.solved {
		return fmt.Errorf("mark solved: %w", ErrAlreadySolved)
	}
	s.solved = true
	s.runID = runID
	return nil
}

// Set returns the ordered members of an index set.
func (s *Scenario) Set(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sets[name]...)
}

// HasMember reports whether a label was declared in an index set.
func (s *Scenario) HasMember(setName, label string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.setIndex[setName][label]
}

// Tuples returns the members of a mapping set.
func (s *Scenario) Tuples(name string) [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]string, len(s.tuples[name]))
	for i, t := range s.tuples[name] {
		out[i] = append([]string(nil), t...)
	}
	return out
}

// Cat returns the members of one category of a set.
func (s *Scenario) Cat(setName, category string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cats[setName][category]...)
}

// HasCat reports whether a category was declared for a set.
func (s *Scenario) HasCat(setName, category string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cats[setName][category]
	return ok
}

// Par returns all rows of a parameter table.
func (s *Scenario) Par(name string) []ParRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ParRow, len(s.pars[name]))
	copy(out, s.pars[name])
	return out
}

// Years returns the year set parsed and sorted numerically.
func (s *Scenario) Years() ([]int, error) {
	labels := s.Set("year")
	years := make([]int, 0, len(labels))
	for _, l := range labels {
		y, err := strconv.Atoi(l)
		if err != nil {
			return nil, fmt.Errorf("year set: non-numeric member %q: %w", l, err)
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// ContentHash returns a deterministic digest of the scenario's sets,
// categories and parameters, used as the solve-cache key.
func (s *Scenario) ContentHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := sha256.New()
	writeSorted := func(prefix string, lines []string) {
		sort.Strings(lines)
		for _, l := range lines {
			fmt.Fprintf(h, "%s|%s\n", prefix, l)
		}
	}
	var lines []string
	for name, members := range s.sets {
		for _, m := range members {
			lines = append(lines, name+"="+m)
		}
	}
	writeSorted("set", lines)
	lines = lines[:0]
	for name, tuples := range s.tuples {
		for _, t := range tuples {
			lines = append(lines, name+"="+strings.Join(t, ","))
		}
	}
	writeSorted("map", lines)
	lines = lines[:0]
	for setName, byCat := range s.cats {
		for c, members := range byCat {
			for _, m := range members {
				lines = append(lines, setName+"/"+c+"="+m)
			}
		}
	}
	writeSorted("cat", lines)
	lines = lines[:0]
	for name, rows := range s.pars {
		for _, r := range rows {
			lines = append(lines, fmt.Sprintf("%s[%s]=%.12g %s", name, strings.Join(r.Key, ","), r.Value, r.Unit))
		}
	}
	writeSorted("par", lines)
	return hex.EncodeToString(h.Sum(nil))
}
