package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/herdsphere/herdsphere/internal/domain"
	infraredis "github.com/herdsphere/herdsphere/internal/infrastructure/redis"
	"github.com/herdsphere/herdsphere/internal/observability/metrics"
	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/service"
)

const (
	stockFeedChannelPrefix = "stockfeed."
	subscriberBuffer       = 8
	writeWait              = 10 * time.Second
	pingPeriod             = 30 * time.Second
)

// StockEvent is one live-feed message: the counters after a ledger change.
type StockEvent struct {
	FarmID      string    `json:"farmId"`
	TotalFeed   float64   `json:"totalFeed"`
	TotalMilk   float64   `json:"totalMilk"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// StockFeedHub serves GET /ws/farms/{id}/stock and fans ledger changes out
// to every subscribed websocket. With Redis attached, events travel through
// pub/sub so subscribers on other server processes see them too; without
// it, fan-out is process-local.
type StockFeedHub struct {
	farms          *service.FarmService
	redis          *infraredis.Client
	logger         *slog.Logger
	allowedOrigins []string

	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{} // farm id -> subscriber channels
}

func NewStockFeedHub(farms *service.FarmService, redisClient *infraredis.Client, allowedOrigins []string, logger *slog.Logger) *StockFeedHub {
	return &StockFeedHub{
		farms:          farms,
		redis:          redisClient,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		subs:           map[string]map[chan []byte]struct{}{},
	}
}

var _ service.StockPublisher = (*StockFeedHub)(nil)

// PublishStock pushes a ledger change into the feed. Never blocks: slow
// subscribers drop events and catch up on the next one.
func (h *StockFeedHub) PublishStock(farmID string, ledger *domain.StockLedger) {
	payload, err := json.Marshal(StockEvent{
		FarmID:      farmID,
		TotalFeed:   ledger.TotalFeed,
		TotalMilk:   ledger.TotalMilk,
		LastUpdated: ledger.LastUpdated,
	})
	if err != nil {
		return
	}
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.redis.Publish(ctx, stockFeedChannelPrefix+farmID, payload); err != nil {
			h.logger.Warn("stock feed publish failed", slog.String("error", err.Error()))
			h.broadcast(farmID, payload)
		}
		return
	}
	h.broadcast(farmID, payload)
}

// Run pumps Redis pub/sub messages into local subscribers until ctx is
// cancelled. A no-op without Redis.
func (h *StockFeedHub) Run(ctx context.Context) {
	if h.redis == nil {
		return
	}
	sub := h.redis.PSubscribe(ctx, stockFeedChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			farmID := strings.TrimPrefix(msg.Channel, stockFeedChannelPrefix)
			h.broadcast(farmID, []byte(msg.Payload))
		}
	}
}

func (h *StockFeedHub) broadcast(farmID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[farmID] {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (h *StockFeedHub) subscribe(farmID string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	if h.subs[farmID] == nil {
		h.subs[farmID] = map[chan []byte]struct{}{}
	}
	h.subs[farmID][ch] = struct{}{}
	h.mu.Unlock()
	metrics.IncStockSubscribers()
	return ch
}

func (h *StockFeedHub) unsubscribe(farmID string, ch chan []byte) {
	h.mu.Lock()
	if set := h.subs[farmID]; set != nil {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, farmID)
		}
	}
	h.mu.Unlock()
	metrics.DecStockSubscribers()
}

func (h *StockFeedHub) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP upgrades GET /ws/farms/{id}/stock and streams ledger changes
// until the client disconnects.
func (h *StockFeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	if farmID == "" {
		http.Error(w, "missing farm id", http.StatusBadRequest)
		return
	}
	if err := h.farms.RequireMember(r.Context(), farmID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ch := h.subscribe(farmID)
	defer h.unsubscribe(farmID, ch)

	// Reader loop only detects disconnects; the feed is one-way.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case payload := <-ch:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
