package test

import (
	"context"
	"net/http"
	"testing"
)

type snapshotBody struct {
	TotalFeed float64 `json:"totalFeed"`
	TotalMilk float64 `json:"totalMilk"`
	TakenAt   string  `json:"takenAt"`
}

// TestStockHistoryOverHTTP drives snapshots through the service the way the
// snapshot worker does, then reads them back through the API.
func TestStockHistoryOverHTTP(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()
	ctx := context.Background()

	resp := server.Do(t, "alice", http.MethodPost, "/api/farms", map[string]string{"name": "North"})
	AssertStatusCode(t, resp, http.StatusCreated)
	var farm farmBody
	DecodeJSON(t, resp, &farm)

	for i, value := range []float64{10, 20, 30} {
		resp = server.Do(t, "alice", http.MethodPost, "/api/farms/"+farm.ID+"/stock/adjust", map[string]any{
			"kind": "totalMilk", "value": value,
		})
		AssertStatusCode(t, resp, http.StatusOK)
		resp.Body.Close()

		if err := server.Stock.TakeSnapshot(ctx, farm.ID); err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
	}

	resp = server.Do(t, "alice", http.MethodGet, "/api/farms/"+farm.ID+"/stock/history", nil)
	AssertStatusCode(t, resp, http.StatusOK)
	var history []snapshotBody
	DecodeJSON(t, resp, &history)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].TotalMilk != 30 {
		t.Errorf("newest snapshot milk = %.1f, want 30", history[0].TotalMilk)
	}

	resp = server.Do(t, "alice", http.MethodGet, "/api/farms/"+farm.ID+"/stock/history?limit=2", nil)
	AssertStatusCode(t, resp, http.StatusOK)
	var limited []snapshotBody
	DecodeJSON(t, resp, &limited)
	if len(limited) != 2 || limited[0].TotalMilk != 30 {
		t.Errorf("limited history = %+v", limited)
	}

	resp = server.Do(t, "alice", http.MethodGet, "/api/farms/"+farm.ID+"/stock/history?limit=bogus", nil)
	AssertStatusCode(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}
