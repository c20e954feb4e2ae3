package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and ephemeral runs. It
// mirrors backend semantics exactly: per-document atomicity under a lock,
// copies on every boundary so callers can never alias internal state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document // collection -> key -> doc
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[string]Document{}}
}

func (s *MemoryStore) Get(_ context.Context, collection, key string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) Set(_ context.Context, collection, key string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, key, cloneDoc(doc))
	return nil
}

func (s *MemoryStore) Create(_ context.Context, collection, key string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[collection][key]; ok {
		return fmt.Errorf("%w: %s/%s", ErrExists, collection, key)
	}
	s.setLocked(collection, key, cloneDoc(doc))
	return nil
}

func (s *MemoryStore) Apply(_ context.Context, collection, key string, ops ...FieldOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[collection][key]
	if !ok {
		doc = Document{}
		s.setLocked(collection, key, doc)
	}
	for _, op := range ops {
		if err := applyOp(doc, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], key)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection, field, value string) ([]Keyed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Keyed
	for key, doc := range s.data[collection] {
		v, ok := doc[field]
		if ok && fmt.Sprint(v) == value {
			out = append(out, Keyed{Key: key, Doc: cloneDoc(doc)})
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryContains(_ context.Context, collection, field, value string) ([]Keyed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Keyed
	for key, doc := range s.data[collection] {
		if containsValue(doc[field], value) {
			out = append(out, Keyed{Key: key, Doc: cloneDoc(doc)})
		}
	}
	return out, nil
}

func (s *MemoryStore) Keys(_ context.Context, collection string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for key := range s.data[collection] {
		out = append(out, key)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, collection string) ([]Keyed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Keyed
	for key, doc := range s.data[collection] {
		out = append(out, Keyed{Key: key, Doc: cloneDoc(doc)})
	}
	return out, nil
}

func (s *MemoryStore) BatchWrite(_ context.Context, writes []Write) error {
	if len(writes) > MaxBatchSize {
		return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(writes))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		switch w.Kind {
		case WriteSet:
			s.setLocked(w.Collection, w.Key, cloneDoc(w.Doc))
		case WriteUpdate:
			doc, ok := s.data[w.Collection][w.Key]
			if !ok {
				doc = Document{}
				s.setLocked(w.Collection, w.Key, doc)
			}
			for _, op := range w.Ops {
				if err := applyOp(doc, op); err != nil {
					return err
				}
			}
		case WriteDelete:
			delete(s.data[w.Collection], w.Key)
		}
	}
	return nil
}

func (s *MemoryStore) setLocked(collection, key string, doc Document) {
	col, ok := s.data[collection]
	if !ok {
		col = map[string]Document{}
		s.data[collection] = col
	}
	col[key] = doc
}

func applyOp(doc Document, op FieldOp) error {
	switch op.Kind {
	case OpSet:
		doc[op.Field] = op.Value
	case OpIncrement:
		delta, ok := op.Value.(float64)
		if !ok {
			return fmt.Errorf("docstore: increment on %q with non-numeric delta %T", op.Field, op.Value)
		}
		doc[op.Field] = asFloat(doc[op.Field]) + delta
	case OpAddToSet:
		v := fmt.Sprint(op.Value)
		if !containsValue(doc[op.Field], v) {
			doc[op.Field] = append(asStringSlice(doc[op.Field]), v)
		}
	case OpRemoveFromSet:
		v := fmt.Sprint(op.Value)
		var kept []string
		for _, e := range asStringSlice(doc[op.Field]) {
			if e != v {
				kept = append(kept, e)
			}
		}
		doc[op.Field] = kept
	case OpDeleteField:
		delete(doc, op.Field)
	default:
		return fmt.Errorf("docstore: unknown field op %d", op.Kind)
	}
	return nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asStringSlice(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}

func containsValue(v any, target string) bool {
	for _, e := range asStringSlice(v) {
		if e == target {
			return true
		}
	}
	return false
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case Document:
		return cloneDoc(vv)
	case map[string]any:
		return map[string]any(cloneDoc(vv))
	case []string:
		out := make([]string, len(vv))
		copy(out, vv)
		return out
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
