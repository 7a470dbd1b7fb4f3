package ixstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryBackend keeps committed scenarios in process memory. It backs tests
// and one-shot CLI runs where persistence across processes is not needed.
type memoryBackend struct {
	mu    sync.Mutex
	byKey map[string]*storedScenario
}

type storedScenario struct {
	info   ScenarioInfo
	sets   map[string][]string
	tuples map[string][][]string
	cats   map[string]map[string][]string
	pars   map[string][]ParRow
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{byKey: make(map[string]*storedScenario)}
}

func memKey(model, name string, version int) string {
	return fmt.Sprintf("%s\x1f%s\x1f%d", model, name, version)
}

func (b *memoryBackend) nextVersion(_ context.Context, model, name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := 1
	for _, st := range b.byKey {
		if st.info.Model == model && st.info.Name == name && st.info.Version >= next {
			next = st.info.Version + 1
		}
	}
	return next, nil
}

func (b *memoryBackend) save(_ context.Context, s *Scenario) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := &storedScenario{
		info: ScenarioInfo{
			ID: s.ID, Model: s.Model, Name: s.Name, Version: s.Version,
			CommitMsg: s.commitMsg, CreatedAt: time.Now().UTC(),
		},
		sets:   make(map[string][]string, len(s.sets)),
		tuples: make(map[string][][]string, len(s.tuples)),
		cats:   make(map[string]map[string][]string, len(s.cats)),
		pars:   make(map[string][]ParRow, len(s.pars)),
	}
	for name, members := range s.sets {
		st.sets[name] = append([]string(nil), members...)
	}
	for name, tuples := range s.tuples {
		cp := make([][]string, len(tuples))
		for i, t := range tuples {
			cp[i] = append([]string(nil), t...)
		}
		st.tuples[name] = cp
	}
	for setName, byCat := range s.cats {
		cp := make(map[string][]string, len(byCat))
		for c, members := range byCat {
			cp[c] = append([]string(nil), members...)
		}
		st.cats[setName] = cp
	}
	for name, rows := range s.pars {
		cp := make([]ParRow, len(rows))
		for i, r := range rows {
			cp[i] = ParRow{Key: append(Key(nil), r.Key...), Value: r.Value, Unit: r.Unit}
		}
		st.pars[name] = cp
	}
	b.byKey[memKey(s.Model, s.Name, s.Version)] = st
	return nil
}

func (b *memoryBackend) load(_ context.Context, p *Platform, model, name string, version int) (*Scenario, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.byKey[memKey(model, name, version)]
	if !ok {
		return nil, ErrNotFound
	}
	s := newScenario(p, model, name, version, st.info.ID)
	hydrate(s, st)
	return s, nil
}

func (b *memoryBackend) list(_ context.Context) ([]ScenarioInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ScenarioInfo, 0, len(b.byKey))
	for _, st := range b.byKey {
		out = append(out, st.info)
	}
	// Same catalog order as the SQL backend.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (b *memoryBackend) close() error { return nil }

// hydrate fills a fresh handle from stored data and seals it. Loaded
// scenarios are committed by construction; only CheckOut reopens them.
func hydrate(s *Scenario, st *storedScenario) {
	for name, members := range st.sets {
		s.sets[name] = append([]string(nil), members...)
		idx := make(map[string]bool, len(members))
		for _, m := range members {
			idx[m] = true
		}
		s.setIndex[name] = idx
	}
	for name, tuples := range st.tuples {
		cp := make([][]string, len(tuples))
		for i, t := range tuples {
			cp[i] = append([]string(nil), t...)
		}
		s.tuples[name] = cp
	}
	for setName, byCat := range st.cats {
		cp := make(map[string][]string, len(byCat))
		for c, members := range byCat {
			cp[c] = append([]string(nil), members...)
		}
		s.cats[setName] = cp
	}
	for name, rows := range st.pars {
		cp := make([]ParRow, len(rows))
		idx := make(map[string]bool, len(rows))
		for i, r := range rows {
			cp[i] = ParRow{Key: append(Key(nil), r.Key...), Value: r.Value, Unit: r.Unit}
			idx[r.Key.join()] = true
		}
		s.pars[name] = cp
		s.parIndex[name] = idx
	}
	s.committed = true
	s.commitMsg = st.info.CommitMsg
}
