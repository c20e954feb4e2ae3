package test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/handler"
	"github.com/herdsphere/herdsphere/internal/repository"
	"github.com/herdsphere/herdsphere/internal/security/audit"
	"github.com/herdsphere/herdsphere/internal/security/auth"
	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/security/ratelimit"
	"github.com/herdsphere/herdsphere/internal/service"
	"github.com/herdsphere/herdsphere/pkg/cache"
)

const testJWTSecret = "integration-test-secret"

// TestServer runs the full API over the in-memory store, wired the same way
// the production server is, minus Postgres, Redis and the workers.
type TestServer struct {
	Server *httptest.Server
	Tokens *auth.TokenManager
	Store  *docstore.MemoryStore

	Farms      *service.FarmService
	Membership *service.MembershipService
	Stock      *service.StockService
	Animals    *service.AnimalService
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.NewMemoryStore()

	farmRepo := repository.NewFarmRepository(store, log)
	userRepo := repository.NewUserRepository(store, log)
	metaRepo := repository.NewMetaRepository(store, log)
	animalRepo := repository.NewAnimalRepository(store, log)

	auditLogger := audit.NewLogger(log)
	purgeService := service.NewPurgeService(farmRepo, userRepo, metaRepo, animalRepo, log)
	farmService := service.NewFarmService(farmRepo, userRepo, metaRepo, purgeService, auditLogger, log)
	membershipService := service.NewMembershipService(farmRepo, userRepo, auditLogger, log)
	stockService := service.NewStockService(metaRepo, cache.New(), auditLogger, log)
	animalService := service.NewAnimalService(animalRepo, farmService, stockService, log)

	tokenManager := auth.NewTokenManager(testJWTSecret, "herdsphere")
	joinLimiter := ratelimit.NewLimiter(100, time.Minute)

	farmsHandler := handler.NewFarmsHandler(farmService, log)
	membershipHandler := handler.NewMembershipHandler(membershipService, joinLimiter, log)
	stockHandler := handler.NewStockHandler(farmService, stockService, log)
	animalsHandler := handler.NewAnimalsHandler(animalService, log)
	healthHandler := handler.NewHealthRecordsHandler(animalService, log)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/farms", farmsHandler.Create)
	api.HandleFunc("GET /api/farms", membershipHandler.ListMine)
	api.HandleFunc("GET /api/farms/{id}", farmsHandler.Get)
	api.HandleFunc("DELETE /api/farms/{id}", farmsHandler.Delete)
	api.HandleFunc("POST /api/farms/join", membershipHandler.Join)
	api.HandleFunc("POST /api/farms/{id}/leave", membershipHandler.Leave)
	api.HandleFunc("PUT /api/me/current-farm", membershipHandler.SwitchCurrentFarm)

	api.HandleFunc("GET /api/farms/{id}/profile", farmsHandler.GetProfile)
	api.HandleFunc("PUT /api/farms/{id}/profile", farmsHandler.UpdateProfile)
	api.HandleFunc("POST /api/farms/{id}/breeds", farmsHandler.AddBreed)
	api.HandleFunc("GET /api/farms/{id}/breeds", farmsHandler.ListBreeds)
	api.HandleFunc("DELETE /api/farms/{id}/breeds/{breedId}", farmsHandler.RemoveBreed)

	api.HandleFunc("GET /api/farms/{id}/stock", stockHandler.Get)
	api.HandleFunc("POST /api/farms/{id}/stock/adjust", stockHandler.Override)
	api.HandleFunc("GET /api/farms/{id}/stock/history", stockHandler.History)

	api.HandleFunc("POST /api/farms/{id}/animals", animalsHandler.Create)
	api.HandleFunc("GET /api/farms/{id}/animals", animalsHandler.List)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}", animalsHandler.Get)
	api.HandleFunc("DELETE /api/farms/{id}/animals/{animalId}", animalsHandler.Delete)
	api.HandleFunc("PUT /api/farms/{id}/animals/{animalId}/status", animalsHandler.SetStatus)
	api.HandleFunc("PUT /api/farms/{id}/animals/{animalId}/records/{date}", animalsHandler.UpsertRecord)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}/records", animalsHandler.ListRecords)
	api.HandleFunc("POST /api/farms/{id}/animals/{animalId}/health-events", healthHandler.RecordHealthEvent)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}/health-events", healthHandler.ListHealthEvents)
	api.HandleFunc("POST /api/farms/{id}/animals/{animalId}/vaccinations", healthHandler.RecordVaccination)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}/vaccinations", healthHandler.ListVaccinations)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.RequireAuth(tokenManager, log, api))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	return &TestServer{
		Server:     httptest.NewServer(middleware.RequestID(mux)),
		Tokens:     tokenManager,
		Store:      store,
		Farms:      farmService,
		Membership: membershipService,
		Stock:      stockService,
		Animals:    animalService,
	}
}

func (s *TestServer) Close() {
	s.Server.Close()
}

func (s *TestServer) URL() string {
	return s.Server.URL
}

// Token mints a bearer token for userID.
func (s *TestServer) Token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.Tokens.GenerateToken(userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

// Do sends an authenticated JSON request and returns the response.
func (s *TestServer) Do(t *testing.T, userID, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.URL()+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// DecodeJSON reads and closes the response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// AssertStatusCode fails the test if the response status differs.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("Expected status %d, got %d (body: %s)", expected, resp.StatusCode, string(body))
	}
}
