package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adreel/adreel-api/pkg/db/queries"
	"github.com/adreel/adreel-api/pkg/generation"
	"github.com/adreel/adreel-api/pkg/pipeline"
	"github.com/adreel/adreel-api/pkg/progress"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Heartbeats double as pings and must arrive well inside pongWait.
	heartbeatPeriod = 30 * time.Second
	maxMessageSize  = 8192
	// A reviewer who stays silent this long is taken as approving.
	reviewTimeout = 10 * time.Minute
)

var errReviewerGone = errors.New("reviewer disconnected")

func progressEvent(id uuid.UUID, status string, pct int, step string) progress.Event {
	return progress.Event{GenerationID: id, Status: status, Progress: pct, Step: step, Timestamp: time.Now().UTC()}
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(h.Config.CORSOrigins))
	for _, o := range h.Config.CORSOrigins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msg progress.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(msg)
}

func (w *wsConn) heartbeat() error {
	if err := w.send(progress.NewMessage(progress.KindHeartbeat, "", "", nil)); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsConn) close(reason string) {
	w.mu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(writeWait))
	w.mu.Unlock()
	_ = w.conn.Close()
}

// readPump forwards client frames to out until the connection drops or ctx ends,
// then closes out.
func (w *wsConn) readPump(ctx context.Context, out chan<- progress.Message) {
	defer close(out)
	w.conn.SetReadLimit(maxMessageSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("readPump: WebSocket read error: %v", err)
			}
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg progress.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = w.send(progress.NewMessage(progress.KindError, "", "malformed message: expected JSON", nil))
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// ProgressWebSocket streams progress events of one generation until it finishes.
func (h *Handlers) ProgressWebSocket(c *gin.Context) {
	g := ownedGeneration(c, "ProgressWebSocket")
	if g == nil {
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("ProgressWebSocket: Failed to upgrade connection: %v", err)
		return
	}
	ws := &wsConn{conn: conn}
	defer ws.close("done")

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	events, unsubscribe, err := h.Broker.Subscribe(ctx, g.ID)
	if err != nil {
		log.Errorf("ProgressWebSocket: Failed to subscribe to %s: %v", g.ID, err)
		_ = ws.send(progress.NewMessage(progress.KindError, "", "progress stream unavailable", nil))
		return
	}
	defer unsubscribe()

	// Snapshot after subscribing so nothing between the two is lost.
	current, err := queries.FindGenerationByID(ctx, g.ID)
	if err == nil && current != nil {
		g = current
	}
	_ = ws.send(progress.NewMessage(progress.KindProgress, "", "", newProgressResponse(g)))
	if generation.IsTerminal(g.Status) {
		return
	}

	incoming := make(chan progress.Message, 4)
	go ws.readPump(ctx, incoming)

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ws.send(progress.NewMessage(progress.KindProgress, ev.Stage, ev.Message, ev)); err != nil {
				return
			}
			if generation.IsTerminal(ev.Status) {
				return
			}
		case _, ok := <-incoming:
			if !ok {
				return
			}
		case <-ticker.C:
			if err := ws.heartbeat(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// wsReviewer asks the connected client to approve each stage.
type wsReviewer struct {
	ws       *wsConn
	incoming <-chan progress.Message
	timeout  time.Duration
}

func (r *wsReviewer) Review(ctx context.Context, stage string, output any) (pipeline.Verdict, error) {
	prompt := "Reply with an approval (e.g. \"looks good\") or with feedback to regenerate this stage."
	if err := r.ws.send(progress.NewMessage(progress.KindStageComplete, stage, prompt, output)); err != nil {
		return pipeline.Verdict{}, err
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return pipeline.Verdict{}, ctx.Err()
		case <-timer.C:
			log.Infof("wsReviewer: no answer for %s within %s, continuing", stage, r.timeout)
			return pipeline.Verdict{Approved: true}, nil
		case msg, ok := <-r.incoming:
			if !ok {
				return pipeline.Verdict{}, errReviewerGone
			}
			switch msg.Type {
			case progress.KindFeedback, progress.KindResponse:
				if progress.IsAcknowledgement(msg.Content) {
					return pipeline.Verdict{Approved: true}, nil
				}
				return pipeline.Verdict{Feedback: msg.Content}, nil
			case progress.KindHeartbeat:
				continue
			default:
				_ = r.ws.send(progress.NewMessage(progress.KindError, stage, "unexpected message type "+msg.Type, nil))
			}
		}
	}
}

// InteractiveWebSocket runs a pending generation's pipeline with the client reviewing
// every LLM stage. Progress events are forwarded on the same socket.
func (h *Handlers) InteractiveWebSocket(c *gin.Context) {
	g := ownedGeneration(c, "InteractiveWebSocket")
	if g == nil {
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("InteractiveWebSocket: Failed to upgrade connection: %v", err)
		return
	}
	ws := &wsConn{conn: conn}
	defer ws.close("done")

	claimed, err := queries.ClaimGeneration(c.Request.Context(), g.ID)
	if err != nil || !claimed {
		_ = ws.send(progress.NewMessage(progress.KindError, "", "generation has already been started or was cancelled", nil))
		return
	}

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	incoming := make(chan progress.Message, 4)
	reviewerIn := make(chan progress.Message, 4)
	go ws.readPump(ctx, incoming)
	// Fan client frames into the reviewer; a disconnect stops the run.
	go func() {
		defer close(reviewerIn)
		for msg := range incoming {
			select {
			case reviewerIn <- msg:
			case <-ctx.Done():
				return
			}
		}
		cancel()
	}()

	if events, unsubscribe, err := h.Broker.Subscribe(ctx, g.ID); err == nil {
		defer unsubscribe()
		go func() {
			for ev := range events {
				_ = ws.send(progress.NewMessage(progress.KindProgress, ev.Stage, ev.Message, ev))
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(heartbeatPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.heartbeat(); err != nil {
					return
				}
			}
		}
	}()

	reviewer := &wsReviewer{ws: ws, incoming: reviewerIn, timeout: reviewTimeout}
	res, err := h.Pipeline.RunInteractive(ctx, jobFor(g), reviewer)
	if err != nil {
		log.Warnf("InteractiveWebSocket: generation %s ended with error: %v", g.ID, err)
		_ = ws.send(progress.NewMessage(progress.KindError, "", err.Error(), gin.H{"generation_id": g.ID.String()}))
		return
	}
	_ = ws.send(progress.NewMessage(progress.KindResponse, "", "generation completed", gin.H{
		"generation_id": g.ID.String(),
		"video_url":     res.VideoURL,
		"cost":          res.Cost,
	}))
}
