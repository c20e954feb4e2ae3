package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
)

// Documents are schemaless at the store layer; these helpers pull typed
// values out at the boundary so malformed documents fail loudly here
// instead of at arbitrary read sites.

func docString(doc docstore.Document, field string) string {
	if v, ok := doc[field].(string); ok {
		return v
	}
	return ""
}

func docFloat(doc docstore.Document, field string) float64 {
	switch v := doc[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func docBool(doc docstore.Document, field string) bool {
	if v, ok := doc[field].(bool); ok {
		return v
	}
	return false
}

func docStrings(doc docstore.Document, field string) []string {
	switch v := doc[field].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func docTime(doc docstore.Document, field string) time.Time {
	s, ok := doc[field].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// mapStoreErr translates store sentinels into domain error kinds.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, docstore.ErrExists):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, docstore.ErrUnavailable):
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	default:
		return err
	}
}
