package ws

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

// NotificationSource streams ledger notifications
type NotificationSource interface {
	ID() string
	LastSeq() uint64
	Subscribe(ch chan<- *domain.Event) event.Subscription
	Notifications(after uint64, limit int) []*domain.Event
}

// Handler handles WebSocket connections
type Handler struct {
	source   NotificationSource
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(source NotificationSource, logger *slog.Logger) *Handler {
	return &Handler{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The stream is read-only and public
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Replay everything after this seq before going live
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "after must be a non-negative integer", http.StatusBadRequest)
			return
		}
		after = parsed
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.New().String()
	client := NewClient(conn, h.source, connectionID, h.logger)

	h.logger.Info("websocket connected",
		"connectionId", connectionID,
		"after", after,
	)

	client.Run(after)

	h.logger.Info("websocket disconnected", "connectionId", connectionID)
}
