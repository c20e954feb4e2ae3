package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestCreateIsFirstWriterWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, "join_codes", "Ab3dEf9h", Document{"farmId": "farm-001"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.Create(ctx, "join_codes", "Ab3dEf9h", Document{"farmId": "farm-002"})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second create: expected ErrExists, got %v", err)
	}

	doc, err := s.Get(ctx, "join_codes", "Ab3dEf9h")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["farmId"] != "farm-001" {
		t.Errorf("reservation overwritten: %v", doc["farmId"])
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "farms", "farm-999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsACopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Set(ctx, "farms", "farm-001", Document{"members": []string{"u1"}}); err != nil {
		t.Fatalf("set: %v", err)
	}

	doc, _ := s.Get(ctx, "farms", "farm-001")
	doc["members"] = []string{"mutated"}

	again, _ := s.Get(ctx, "farms", "farm-001")
	members, _ := again["members"].([]string)
	if len(members) != 1 || members[0] != "u1" {
		t.Errorf("stored document was mutated through a read: %v", again["members"])
	}
}

func TestApplyIncrementConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 20
	const perWorker = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := s.Apply(ctx, "farms/farm-001/meta", "stats", Increment("totalMilk", 2)); err != nil {
					t.Errorf("apply: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, "farms/farm-001/meta", "stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, ok := doc["totalMilk"].(float64)
	if !ok || got != float64(workers*perWorker*2) {
		t.Errorf("totalMilk = %v, want %d", doc["totalMilk"], workers*perWorker*2)
	}
}

func TestApplyCreatesDocumentIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Apply(ctx, "users", "u1", AddToSet("farms", "farm-001")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	doc, err := s.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	farms, _ := doc["farms"].([]string)
	if len(farms) != 1 || farms[0] != "farm-001" {
		t.Errorf("farms = %v", doc["farms"])
	}
}

func TestAddToSetIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Apply(ctx, "users", "u1", AddToSet("farms", "farm-001")); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	doc, _ := s.Get(ctx, "users", "u1")
	farms, _ := doc["farms"].([]string)
	if len(farms) != 1 {
		t.Errorf("expected a set, got %v", farms)
	}
}

func TestRemoveFromSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "users", "u1", Document{"farms": []string{"farm-001", "farm-002"}})
	if err := s.Apply(ctx, "users", "u1", RemoveFromSet("farms", "farm-001")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Removing again is a no-op.
	if err := s.Apply(ctx, "users", "u1", RemoveFromSet("farms", "farm-001")); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	doc, _ := s.Get(ctx, "users", "u1")
	farms, _ := doc["farms"].([]string)
	if len(farms) != 1 || farms[0] != "farm-002" {
		t.Errorf("farms = %v", farms)
	}
}

func TestQueryContains(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "users", "u1", Document{"farms": []string{"farm-001", "farm-002"}})
	s.Set(ctx, "users", "u2", Document{"farms": []string{"farm-002"}})
	s.Set(ctx, "users", "u3", Document{"farms": []string{}})

	got, err := s.QueryContains(ctx, "users", "farms", "farm-002")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 matches, got %d", len(got))
	}
}

func TestQueryEquality(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "farms", "farm-001", Document{"deleting": true})
	s.Set(ctx, "farms", "farm-002", Document{"deleting": false})
	s.Set(ctx, "farms", "farm-003", Document{})

	got, err := s.Query(ctx, "farms", "deleting", "true")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Key != "farm-001" {
		t.Errorf("expected farm-001 only, got %v", got)
	}
}

func TestKeysHonorsLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, k := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		s.Set(ctx, "farms/farm-001/animals/cow-001/records", k, Document{"feed": 1.0})
	}

	keys, err := s.Keys(ctx, "farms/farm-001/animals/cow-001/records", 2)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d", len(keys))
	}

	all, _ := s.Keys(ctx, "farms/farm-001/animals/cow-001/records", 0)
	if len(all) != 3 {
		t.Errorf("expected 3 keys, got %d", len(all))
	}
}

func TestBatchWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "users", "u1", Document{"farms": []string{"farm-001"}, "currentFarm": "farm-001", "email": "u1@example.com"})

	writes := []Write{
		{Kind: WriteSet, Collection: "farms", Key: "farm-009", Doc: Document{"farmName": "North"}},
		{Kind: WriteUpdate, Collection: "users", Key: "u1", Ops: []FieldOp{
			RemoveFromSet("farms", "farm-001"),
			Set("currentFarm", nil),
		}},
		{Kind: WriteDelete, Collection: "farms", Key: "farm-009"},
	}
	if err := s.BatchWrite(ctx, writes); err != nil {
		t.Fatalf("batch: %v", err)
	}

	if _, err := s.Get(ctx, "farms", "farm-009"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected farm-009 deleted, got %v", err)
	}

	u1, _ := s.Get(ctx, "users", "u1")
	if farms, _ := u1["farms"].([]string); len(farms) != 0 {
		t.Errorf("farms = %v, want empty", u1["farms"])
	}
	if u1["currentFarm"] != nil {
		t.Errorf("currentFarm = %v, want nil", u1["currentFarm"])
	}
	// Fields outside the ops survive.
	if u1["email"] != "u1@example.com" {
		t.Errorf("email clobbered: %v", u1["email"])
	}
}

func TestBatchWriteRejectsOversizedBatch(t *testing.T) {
	s := NewMemoryStore()
	writes := make([]Write, MaxBatchSize+1)
	for i := range writes {
		writes[i] = Write{Kind: WriteDelete, Collection: "farms", Key: "x"}
	}
	if err := s.BatchWrite(context.Background(), writes); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Delete(context.Background(), "farms", "farm-404"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}
