// package colmap
//
// maps source columns onto target columns by position
package colmap

import (
	"errors"
	"fmt"

	"github.com/baderkha/events-migrator/pkg/migrate/table"
	"github.com/cevaris/ordered_map"
	"github.com/hashicorp/go-multierror"
)

// ErrEmpty : a mapping needs at least one column
var ErrEmpty = errors.New("schema mapping is empty")

// Pair : one source column and the target column it lands in
type Pair struct {
	Source string
	Target string
}

// SchemaMap : immutable, ordered source -> target column mapping.
// Position i of a source row binds to TargetColumns()[i].
type SchemaMap struct {
	source []string
	target []string
}

// New : validates pairs and builds the map
func New(pairs []Pair) (*SchemaMap, error) {
	if len(pairs) == 0 {
		return nil, ErrEmpty
	}
	var (
		errs       error
		seenSource = make(map[string]struct{}, len(pairs))
		seenTarget = make(map[string]struct{}, len(pairs))
		m          = &SchemaMap{
			source: make([]string, 0, len(pairs)),
			target: make([]string, 0, len(pairs)),
		}
	)
	for i, p := range pairs {
		if !table.IsIdentifier(p.Source) {
			errs = multierror.Append(errs, fmt.Errorf("mapping %d: source column %q is not a valid column name", i, p.Source))
		}
		if !table.IsIdentifier(p.Target) {
			errs = multierror.Append(errs, fmt.Errorf("mapping %d: target column %q is not a valid column name", i, p.Target))
		}
		if _, ok := seenSource[p.Source]; ok {
			errs = multierror.Append(errs, fmt.Errorf("mapping %d: source column %q is mapped twice", i, p.Source))
		}
		if _, ok := seenTarget[p.Target]; ok {
			errs = multierror.Append(errs, fmt.Errorf("mapping %d: target column %q is written twice", i, p.Target))
		}
		seenSource[p.Source] = struct{}{}
		seenTarget[p.Target] = struct{}{}
		m.source = append(m.source, p.Source)
		m.target = append(m.target, p.Target)
	}
	if errs != nil {
		return nil, errs
	}
	return m, nil
}

// FromOrderedMap : builds the map from source -> target string entries in insertion order
func FromOrderedMap(om *ordered_map.OrderedMap) (*SchemaMap, error) {
	if om == nil {
		return nil, ErrEmpty
	}
	pairs := make([]Pair, 0, om.Len())
	iter := om.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		src, okK := kv.Key.(string)
		tgt, okV := kv.Value.(string)
		if !okK || !okV {
			return nil, fmt.Errorf("mapping %v: %v must map a column name to a column name", kv.Key, kv.Value)
		}
		pairs = append(pairs, Pair{Source: src, Target: tgt})
	}
	return New(pairs)
}

// MustNew : panics when the pairs are invalid
func MustNew(pairs ...Pair) *SchemaMap {
	m, err := New(pairs)
	if err != nil {
		panic(fmt.Errorf("colmap : %w", err))
	}
	return m
}

// SourceColumns : columns to read from the source, in mapping order
func (m *SchemaMap) SourceColumns() []string {
	return append([]string(nil), m.source...)
}

// TargetColumns : columns to write on the target, in mapping order
func (m *SchemaMap) TargetColumns() []string {
	return append([]string(nil), m.target...)
}

// Arity : number of mapped columns, also the width of every transferred row
func (m *SchemaMap) Arity() int {
	return len(m.source)
}

// Pairs : copy of the mapping
func (m *SchemaMap) Pairs() []Pair {
	res := make([]Pair, len(m.source))
	for i := range m.source {
		res[i] = Pair{Source: m.source[i], Target: m.target[i]}
	}
	return res
}
