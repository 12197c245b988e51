// Package memory is an in-process repository.Store used for local runs and
// tests. Batches are applied atomically under the store lock.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"alcyxob/gym-notifier/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu          sync.RWMutex
	collections map[repository.Collection]map[string]repository.Document
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[repository.Collection]map[string]repository.Document)}
}

// Count returns the number of documents in c.
func (s *Store) Count(c repository.Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[c])
}

func (s *Store) Find(ctx context.Context, c repository.Collection, q repository.Query) ([]repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = repository.FieldID
	}

	s.mu.RLock()
	var matched []repository.Document
	for _, doc := range s.collections[c] {
		ok, err := matches(doc, q.Filters)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if !ok {
			continue
		}
		if q.After != nil {
			cmp, comparable := compareValues(doc[orderBy], q.After)
			if !comparable || (!q.Descending && cmp <= 0) || (q.Descending && cmp >= 0) {
				continue
			}
		}
		matched = append(matched, doc)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		cmp, _ := compareValues(matched[i][orderBy], matched[j][orderBy])
		if cmp == 0 {
			cmp = strings.Compare(repository.DocumentID(matched[i]), repository.DocumentID(matched[j]))
		}
		if q.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]repository.Document, 0, len(matched))
	for _, doc := range matched {
		cp, err := clone(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, c repository.Collection, id string) (repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[c][id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(doc)
}

func (s *Store) Insert(ctx context.Context, c repository.Collection, doc repository.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cp, err := clone(doc)
	if err != nil {
		return "", err
	}
	id := repository.DocumentID(cp)
	if id == "" {
		id = uuid.NewString()
		cp[repository.FieldID] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(c)
	if _, exists := coll[id]; exists {
		return "", repository.ErrDuplicateID
	}
	coll[id] = cp
	return id, nil
}

func (s *Store) Update(ctx context.Context, c repository.Collection, id string, fields repository.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, err := clone(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[c][id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range patch {
		if k == repository.FieldID {
			continue
		}
		doc[k] = v
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, c repository.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[c][id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.collections[c], id)
	return nil
}

func (s *Store) Batch(c repository.Collection) repository.Batch {
	return &batch{store: s, collection: c}
}

func (s *Store) collection(c repository.Collection) map[string]repository.Document {
	coll, ok := s.collections[c]
	if !ok {
		coll = make(map[string]repository.Document)
		s.collections[c] = coll
	}
	return coll
}

type batchOp struct {
	id     string
	fields repository.Document // nil means delete
}

type batch struct {
	store      *Store
	collection repository.Collection
	ops        []batchOp
}

func (b *batch) Update(id string, fields repository.Document) {
	if fields == nil {
		fields = repository.Document{}
	}
	b.ops = append(b.ops, batchOp{id: id, fields: fields})
}

func (b *batch) Delete(id string) {
	b.ops = append(b.ops, batchOp{id: id})
}

func (b *batch) Len() int {
	return len(b.ops)
}

// Commit validates every write before applying any of them.
func (b *batch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.ops) > repository.MaxBatchWrites {
		return repository.ErrBatchTooLarge
	}
	patches := make([]repository.Document, len(b.ops))
	for i, op := range b.ops {
		if op.fields == nil {
			continue
		}
		p, err := clone(op.fields)
		if err != nil {
			return err
		}
		patches[i] = p
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	coll := b.store.collections[b.collection]
	for _, op := range b.ops {
		if _, ok := coll[op.id]; !ok {
			return fmt.Errorf("batch write %s/%s: %w", b.collection, op.id, repository.ErrNotFound)
		}
	}
	for i, op := range b.ops {
		if op.fields == nil {
			delete(coll, op.id)
			continue
		}
		doc, ok := coll[op.id]
		if !ok {
			// deleted earlier in the same batch
			continue
		}
		for k, v := range patches[i] {
			if k != repository.FieldID {
				doc[k] = v
			}
		}
	}
	b.ops = nil
	return nil
}

func clone(doc repository.Document) (repository.Document, error) {
	if doc == nil {
		return repository.Document{}, nil
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out repository.Document
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func matches(doc repository.Document, filters []repository.Filter) (bool, error) {
	for _, f := range filters {
		v, present := doc[f.Field]
		switch f.Op {
		case repository.OpEq:
			if !present {
				return false, nil
			}
			if cmp, ok := compareValues(v, f.Value); !ok || cmp != 0 {
				return false, nil
			}
		case repository.OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return false, fmt.Errorf("%w: %q expects a list", repository.ErrInvalidQuery, f.Field)
			}
			found := false
			for _, candidate := range values {
				if cmp, ok := compareValues(v, candidate); ok && cmp == 0 {
					found = true
					break
				}
			}
			if !present || !found {
				return false, nil
			}
		case repository.OpGte, repository.OpLte:
			if !present {
				return false, nil
			}
			cmp, ok := compareValues(v, f.Value)
			if !ok {
				return false, nil
			}
			if (f.Op == repository.OpGte && cmp < 0) || (f.Op == repository.OpLte && cmp > 0) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: operator %q", repository.ErrInvalidQuery, f.Op)
		}
	}
	return true, nil
}

// compareValues orders two scalar values after normalizing the different Go
// and bson representations of times, numbers and strings. The second result
// is false when the values are not of comparable kinds.
func compareValues(a, b any) (int, bool) {
	na, ka := normalize(a)
	nb, kb := normalize(b)
	if ka != kb || ka == kindOther {
		return 0, false
	}
	switch ka {
	case kindNumber:
		x, y := na.(float64), nb.(float64)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case kindString:
		return strings.Compare(na.(string), nb.(string)), true
	case kindBool:
		if na.(bool) == nb.(bool) {
			return 0, true
		}
		if !na.(bool) {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

type valueKind int

const (
	kindOther valueKind = iota
	kindNumber
	kindString
	kindBool
)

func normalize(v any) (any, valueKind) {
	switch t := v.(type) {
	case nil:
		return nil, kindOther
	case time.Time:
		return float64(t.UnixMilli()), kindNumber
	case primitive.DateTime:
		return float64(t), kindNumber
	case *string:
		if t == nil {
			return nil, kindOther
		}
		return *t, kindString
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), kindString
	case reflect.Bool:
		return rv.Bool(), kindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), kindNumber
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), kindNumber
	case reflect.Float32, reflect.Float64:
		return rv.Float(), kindNumber
	}
	return nil, kindOther
}
