package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"drawspace-backend/internal/hub"
	"drawspace-backend/internal/model"
	"drawspace-backend/pkg/retry"
)

// Handlers are the client's upcalls. All of them run on the reader
// goroutine; keep them fast or hand off.
type Handlers struct {
	// OnState fires after every successful join, including rejoins after
	// a reconnect. Receivers must treat it as a full reset of the local
	// surface, never as a delta.
	OnState    func(snapshot string, version int64, presence []hub.PresenceInfo)
	OnEvent    func(event *model.DrawingEvent)
	OnCursor   func(sessionID string, p model.Point)
	OnPresence func(kind string, user *hub.PresenceInfo)
	OnError    func(code, message string)
}

// Options configure a CanvasClient
type Options struct {
	URL       string // ws://host/ws/canvas
	CanvasID  string
	Token     string // optional JWT, appended as ?token=
	GuestName string
	GuestID   string
	QueueSize int // outbound relay queue depth, default 128
	Retry     retry.Config
}

// CanvasClient is a room connection for a drawing surface. Relay is
// fire-and-forget: events are queued and flushed by a background writer,
// so the caller's render path never blocks on the network.
type CanvasClient struct {
	opts     Options
	handlers Handlers

	outbox chan *model.DrawingEvent

	mu   sync.Mutex
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client; Start must be called before events flow
func New(opts Options, handlers Handlers) *CanvasClient {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CanvasClient{
		opts:     opts,
		handlers: handlers,
		outbox:   make(chan *model.DrawingEvent, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start dials, joins the canvas and launches the background writer.
// A dropped connection is redialed with backoff; every rejoin reloads
// the full snapshot through OnState.
func (c *CanvasClient) Start() error {
	if err := c.connect(c.ctx); err != nil {
		return err
	}
	go c.run()
	return nil
}

// Relay queues a local event for delivery. Never blocks: when the queue
// is full the event is dropped and logged, the authoritative state will
// be recovered from the next snapshot load.
func (c *CanvasClient) Relay(event *model.DrawingEvent) {
	select {
	case c.outbox <- event:
	default:
		log.Printf("⚠️ [CanvasClient] relay queue full, dropping %s event", event.Kind)
	}
}

// MoveCursor sends a best-effort cursor frame, outside the relay queue
func (c *CanvasClient) MoveCursor(p model.Point) {
	c.writeJSON(&hub.ClientMessage{
		Type: hub.MsgCursorMove,
		X:    p.X,
		Y:    p.Y,
	})
}

// Close tears the connection down and stops the writer
func (c *CanvasClient) Close() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

// connect dials and runs the identify/join handshake
func (c *CanvasClient) connect(ctx context.Context) error {
	url := c.opts.URL
	if c.opts.Token != "" {
		url += "?token=" + c.opts.Token
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	if c.opts.GuestName != "" || c.opts.GuestID != "" {
		identify := hub.ClientMessage{
			Type:      hub.MsgUserIdentify,
			GuestName: c.opts.GuestName,
			GuestID:   c.opts.GuestID,
		}
		if err := conn.WriteJSON(&identify); err != nil {
			conn.Close()
			return err
		}
	}

	join := hub.ClientMessage{
		Type:     hub.MsgJoinCanvas,
		CanvasID: c.opts.CanvasID,
	}
	if err := conn.WriteJSON(&join); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// run owns the connection lifecycle: one reader per connection, the
// writer drains the outbox, and either side failing forces a redial
func (c *CanvasClient) run() {
	defer close(c.done)

	for {
		readerDone := make(chan struct{})
		go c.readLoop(readerDone)

		alive := true
		for alive {
			select {
			case <-c.ctx.Done():
				return
			case <-readerDone:
				alive = false
			case event := <-c.outbox:
				if err := c.writeEvent(event); err != nil {
					log.Printf("⚠️ [CanvasClient] write failed: %v", err)
					alive = false
				}
			}
		}

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()

		// redial with backoff; the rejoin triggers a fresh canvas-state
		err := retry.Do(c.ctx, c.opts.Retry, func() error {
			return c.connect(c.ctx)
		})
		if err != nil {
			if c.ctx.Err() == nil {
				log.Printf("🚨 [CanvasClient] reconnect failed: %v", err)
			}
			return
		}
		log.Printf("ℹ️ [CanvasClient] reconnected to canvas %s", c.opts.CanvasID)
	}
}

func (c *CanvasClient) readLoop(done chan struct{}) {
	defer close(done)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg hub.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *CanvasClient) dispatch(msg *hub.ServerMessage) {
	switch msg.Type {
	case hub.MsgCanvasState:
		if c.handlers.OnState != nil {
			c.handlers.OnState(msg.Snapshot, msg.Version, msg.Presence)
		}
	case hub.MsgCanvasUpdate:
		if c.handlers.OnEvent != nil && msg.Event != nil {
			c.handlers.OnEvent(msg.Event)
		}
	case hub.MsgCursorMove:
		if c.handlers.OnCursor != nil && msg.Cursor != nil {
			c.handlers.OnCursor(msg.SessionID, *msg.Cursor)
		}
	case hub.MsgCollaboratorJoined, hub.MsgCollaboratorLeft:
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(msg.Type, msg.User)
		}
	case hub.MsgError:
		if c.handlers.OnError != nil {
			c.handlers.OnError(msg.Code, msg.Error)
		}
	}
}

func (c *CanvasClient) writeEvent(event *model.DrawingEvent) error {
	return c.writeJSON(&hub.ClientMessage{
		Type:      hub.MsgCanvasUpdate,
		Operation: hub.OperationFor(event.Kind),
		Event:     event,
	})
}

func (c *CanvasClient) writeJSON(msg *hub.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}
