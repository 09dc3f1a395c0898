package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/cache"
	"github.com/landppt/landppt/internal/generator"
	"github.com/landppt/landppt/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	// Slow consumers are dropped once their send buffer fills.
	wsSendBuffer = 32
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ProgressHub fans generation progress events out to websocket
// subscribers. It implements the workflow engine's publisher.
type ProgressHub struct {
	cache    *cache.Cache
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	onCount  func(delta int)

	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*wsClient]struct{}
}

// NewProgressHub creates a hub. cache may be nil; onCount may be nil.
func NewProgressHub(c *cache.Cache, onCount func(delta int), logger zerolog.Logger) *ProgressHub {
	return &ProgressHub{
		cache:  c,
		logger: logger.With().Str("component", "progress_hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Session auth already ran; same-origin policy is enforced by
			// the session cookie's SameSite attribute.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		onCount:     onCount,
		subscribers: make(map[uuid.UUID]map[*wsClient]struct{}),
	}
}

// Publish delivers an event to every subscriber of its project.
func (h *ProgressHub) Publish(event generator.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode progress event")
		return
	}

	h.mu.RLock()
	clients := h.subscribers[event.ProjectID]
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			// Buffer full; the write pump will clean the client up.
		}
	}
	h.mu.RUnlock()
}

// Serve upgrades the request and streams progress for one project. The
// current board is replayed first so reconnecting clients catch up.
func (h *ProgressHub) Serve(c *gin.Context, project *models.Project) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.register(project.ID, client)

	h.replayBoard(c.Request.Context(), project, client)

	go h.writePump(project.ID, client)
	h.readPump(project.ID, client)
}

func (h *ProgressHub) register(projectID uuid.UUID, client *wsClient) {
	h.mu.Lock()
	if h.subscribers[projectID] == nil {
		h.subscribers[projectID] = make(map[*wsClient]struct{})
	}
	h.subscribers[projectID][client] = struct{}{}
	h.mu.Unlock()

	if h.onCount != nil {
		h.onCount(1)
	}
	h.logger.Debug().Str("project_id", projectID.String()).Msg("websocket client connected")
}

func (h *ProgressHub) unregister(projectID uuid.UUID, client *wsClient) {
	h.mu.Lock()
	clients := h.subscribers[projectID]
	if _, ok := clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subscribers, projectID)
	}
	h.mu.Unlock()

	close(client.send)
	if h.onCount != nil {
		h.onCount(-1)
	}
	h.logger.Debug().Str("project_id", projectID.String()).Msg("websocket client disconnected")
}

// replayBoard sends the freshest known board state: the cached copy when
// available, otherwise the persisted one.
func (h *ProgressHub) replayBoard(ctx context.Context, project *models.Project, client *wsClient) {
	board := project.TodoBoard
	if h.cache != nil {
		if cached, err := h.cache.GetBoard(ctx, project.ID); err == nil {
			board = cached
		}
	}
	if board == nil {
		return
	}

	payload, err := json.Marshal(gin.H{"type": "board", "board": board})
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

func (h *ProgressHub) writePump(projectID uuid.UUID, client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client messages (only pongs and close frames are
// expected) and tears the client down when the connection drops.
func (h *ProgressHub) readPump(projectID uuid.UUID, client *wsClient) {
	defer h.unregister(projectID, client)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
