package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"drawspace-backend/internal/model"
	"drawspace-backend/pkg/apperr"
)

// CanvasSource provides canvas metadata and snapshots to rooms
type CanvasSource interface {
	Get(id string) (*model.Canvas, error)
	LoadSnapshot(id string) (string, int64, error)
}

// SnapshotSink receives accepted events for asynchronous persistence
type SnapshotSink interface {
	Enqueue(canvasID string, event *model.DrawingEvent)
}

// PermissionFunc resolves a principal's effective permission on a canvas
type PermissionFunc func(canvas *model.Canvas, principal model.Principal) (model.Permission, bool, error)

// PresenceMirror best-effort external presence view (Redis). The
// authoritative presence set lives in the room; the mirror only serves
// the page-chrome layer and may lag or be absent.
type PresenceMirror interface {
	SessionJoined(canvasID, sessionID string, info PresenceInfo)
	SessionLeft(canvasID, sessionID string)
	Heartbeat(canvasID, sessionID string)
}

// Config room behavior knobs
type Config struct {
	HeartbeatTimeout        time.Duration
	ReaperInterval          time.Duration
	DefaultMaxCollaborators int
	EventBufferSize         int
}

// =============================================================================
// Room Hub - per-canvas fan-out coordination
// =============================================================================

// RoomHub manages all canvas rooms and their sessions
type RoomHub struct {
	mu       sync.RWMutex
	rooms    map[string]*Room    // canvasID -> room
	sessions map[string]*Session // sessionID -> session (for Leave lookups)

	source  CanvasSource
	sink    SnapshotSink
	resolve PermissionFunc
	mirror  PresenceMirror
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoomHub creates a new RoomHub instance
func NewRoomHub(source CanvasSource, sink SnapshotSink, resolve PermissionFunc, mirror PresenceMirror, cfg Config) *RoomHub {
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomHub{
		rooms:    make(map[string]*Room),
		sessions: make(map[string]*Session),
		source:   source,
		sink:     sink,
		resolve:  resolve,
		mirror:   mirror,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the heartbeat reaper
func (h *RoomHub) Start() {
	if h.cfg.ReaperInterval > 0 {
		go h.runReaper()
	}
}

// Close tears down all rooms
func (h *RoomHub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		room.shutdown()
		delete(h.rooms, id)
	}
}

// JoinState everything a fresh session needs before live events arrive
type JoinState struct {
	Snapshot string
	Version  int64
	Presence []PresenceInfo
}

// Join validates the principal, admits it to the canvas room and returns
// the seeded state. The snapshot is handed over under the same room lock
// that starts relaying to the session, so there is no missed-event gap —
// and since broadcast recipients are fixed when a message is enqueued,
// nothing folded before admission is replayed to the joiner either.
func (h *RoomHub) Join(canvasID string, principal model.Principal, displayName string, conn Conn) (*Session, *JoinState, error) {
	canvas, err := h.source.Get(canvasID)
	if err != nil {
		return nil, nil, err
	}

	perm, ok, err := h.resolve(canvas, principal)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperr.PermissionDenied("no access to this canvas")
	}

	if displayName == "" {
		displayName = "Anonymous"
	}

	session := NewSession(canvasID, principal, displayName, perm, conn)

	// The room pointer is obtained outside its own lock, so the last
	// leaver may tear the room down before add runs. add refuses closed
	// rooms; retry against a fresh one.
	var state *JoinState
	for {
		room, err := h.getOrCreateRoom(canvas)
		if err != nil {
			return nil, nil, err
		}
		state, err = room.add(session)
		if err == errRoomClosed {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		break
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()

	if h.mirror != nil {
		go h.mirror.SessionJoined(canvasID, session.ID, session.Presence())
	}

	log.Printf("[RoomHub] Session %s joined canvas %s (%s, perm=%s)",
		session.ID, canvasID, principal.Key(), perm)

	return session, state, nil
}

// Leave removes a session from its room. Idempotent: leaving twice is a
// no-op. The last session out tears the room down.
func (h *RoomHub) Leave(sessionID string) {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	room := h.rooms[session.CanvasID]
	h.mu.Unlock()

	if room == nil {
		return
	}

	empty := room.remove(session)
	session.Close()

	if h.mirror != nil {
		go h.mirror.SessionLeft(session.CanvasID, sessionID)
	}

	log.Printf("[RoomHub] Session %s left canvas %s, remaining: %d",
		sessionID, session.CanvasID, room.sessionCount())

	if empty {
		h.removeRoom(session.CanvasID)
	}
}

// RelayEvent validates and fans out a drawing event, then enqueues the
// asynchronous snapshot write. Never blocks on the database.
func (h *RoomHub) RelayEvent(sessionID string, event *model.DrawingEvent) error {
	session, room, err := h.lookup(sessionID)
	if err != nil {
		return err
	}

	if !session.CanEdit() {
		return apperr.PermissionDenied("session has view-only access")
	}
	if err := event.Validate(); err != nil {
		return apperr.InvalidInput(err.Error())
	}
	event.Stamp()
	session.Touch()

	room.apply(session.ID, event, h.sink)

	if h.mirror != nil {
		go h.mirror.Heartbeat(session.CanvasID, session.ID)
	}
	return nil
}

// MoveCursor best-effort cursor broadcast; nothing is persisted and no
// permission beyond joining the room is required
func (h *RoomHub) MoveCursor(sessionID string, p model.Point) error {
	session, room, err := h.lookup(sessionID)
	if err != nil {
		return err
	}

	session.SetCursor(p)
	session.Touch()

	room.broadcastFrom(session.ID, &ServerMessage{
		Type:      MsgCursorMove,
		SessionID: session.ID,
		Cursor:    &p,
	})
	return nil
}

// Heartbeat marks a session alive without any other effect
func (h *RoomHub) Heartbeat(sessionID string) {
	h.mu.RLock()
	session := h.sessions[sessionID]
	h.mu.RUnlock()
	if session != nil {
		session.Touch()
	}
}

// RoomSize reports active sessions for a canvas, 0 when no room exists
func (h *RoomHub) RoomSize(canvasID string) int {
	h.mu.RLock()
	room := h.rooms[canvasID]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.sessionCount()
}

func (h *RoomHub) lookup(sessionID string) (*Session, *Room, error) {
	h.mu.RLock()
	session := h.sessions[sessionID]
	var room *Room
	if session != nil {
		room = h.rooms[session.CanvasID]
	}
	h.mu.RUnlock()

	if session == nil || room == nil {
		return nil, nil, apperr.PermissionDenied("session is not in a room")
	}
	return session, room, nil
}

// getOrCreateRoom creates the room lazily on first join, seeding its fold
// from the stored snapshot before any session is admitted
func (h *RoomHub) getOrCreateRoom(canvas *model.Canvas) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[canvas.ID]; exists {
		return room, nil
	}

	snapshot, version, err := h.source.LoadSnapshot(canvas.ID)
	if err != nil {
		return nil, err
	}

	maxSessions := canvas.MaxCollaborators
	if maxSessions <= 0 {
		maxSessions = h.cfg.DefaultMaxCollaborators
	}

	ctx, cancel := context.WithCancel(h.ctx)
	room := &Room{
		ID:          canvas.ID,
		sessions:    make(map[string]*Session),
		snapshot:    snapshot,
		version:     version,
		maxSessions: maxSessions,
		broadcast:   make(chan *outbound, h.cfg.EventBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	go room.runBroadcaster()

	h.rooms[canvas.ID] = room
	log.Printf("[RoomHub] Created room: %s", canvas.ID)
	return room, nil
}

func (h *RoomHub) removeRoom(canvasID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[canvasID]
	if !exists || !room.shutdownIfEmpty() {
		return
	}
	delete(h.rooms, canvasID)
	log.Printf("[RoomHub] Removed room: %s", canvasID)
}

// UpdateVersion records the latest persisted snapshot version for a
// canvas so late joiners carry a version their next snapshot write can
// build on. Called by the snapshot writer after each flush.
func (h *RoomHub) UpdateVersion(canvasID string, version int64) {
	h.mu.RLock()
	room := h.rooms[canvasID]
	h.mu.RUnlock()
	if room != nil {
		room.setVersion(version)
	}
}

// runReaper force-leaves sessions with no heartbeat inside the timeout
func (h *RoomHub) runReaper() {
	ticker := time.NewTicker(h.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.reapStale()
		}
	}
}

func (h *RoomHub) reapStale() {
	cutoff := time.Now().Add(-h.cfg.HeartbeatTimeout)

	h.mu.RLock()
	var stale []string
	for id, session := range h.sessions {
		if session.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		log.Printf("[RoomHub] Reaping stale session %s", id)
		h.Leave(id)
	}
}

// =============================================================================
// Room - one canvas's session set and serialized mutation section
// =============================================================================

// Room owns the authoritative in-memory session set and folded snapshot
// for one canvas. All shared-state writes take the room mutex; this is
// the per-canvas critical section (clear serialization included).
type Room struct {
	ID string

	mu          sync.RWMutex
	sessions    map[string]*Session
	snapshot    string // folded event log, seeds late joiners
	version     int64  // latest persisted snapshot version
	maxSessions int
	closed      bool

	broadcast chan *outbound
	ctx       context.Context
	cancel    context.CancelFunc
}

// outbound carries its recipient set, fixed at enqueue time under the
// room lock. A session admitted later gets the same event inside its
// join snapshot and must not see it again as a live update.
type outbound struct {
	msg     *ServerMessage
	targets []*Session
}

// errRoomClosed is an internal signal: the join raced the last leaver's
// teardown and must retry against a fresh room
var errRoomClosed = errors.New("room is closed")

func (r *Room) add(session *Session) (*JoinState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errRoomClosed
	}
	if len(r.sessions) >= r.maxSessions {
		return nil, apperr.RoomFull(r.maxSessions)
	}

	// Presence of everyone already here, before this session is visible
	presence := make([]PresenceInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		presence = append(presence, s.Presence())
	}

	r.sessions[session.ID] = session

	state := &JoinState{
		Snapshot: r.snapshot,
		Version:  r.version,
		Presence: presence,
	}

	info := session.Presence()
	r.enqueue(session.ID, &ServerMessage{
		Type:      MsgCollaboratorJoined,
		SessionID: session.ID,
		User:      &info,
	})

	return state, nil
}

// remove reports whether the room is now empty
func (r *Room) remove(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return len(r.sessions) == 0
	}
	delete(r.sessions, session.ID)

	r.enqueue("", &ServerMessage{
		Type:      MsgCollaboratorLeft,
		SessionID: session.ID,
	})

	return len(r.sessions) == 0
}

// apply folds the event, fans it out and hands it to the snapshot sink,
// all inside the room's critical section so clear serializes against every
// other mutation and broadcast order matches fold order. A clear against
// an already-blank canvas collapses to nothing: no broadcast, no write.
func (r *Room) apply(origin string, event *model.DrawingEvent, sink SnapshotSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Kind == model.EventKindClear && (r.snapshot == "" || r.snapshot == "[]") {
		return
	}

	folded, err := model.Fold(r.snapshot, event)
	if err != nil {
		log.Printf("[Room %s] Fold failed, keeping previous snapshot: %v", r.ID, err)
		return
	}
	r.snapshot = folded

	r.enqueue(origin, &ServerMessage{
		Type:      MsgCanvasUpdate,
		SessionID: origin,
		Operation: OperationFor(event.Kind),
		Event:     event,
	})

	sink.Enqueue(r.ID, event)
}

func (r *Room) broadcastFrom(origin string, msg *ServerMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.enqueue(origin, msg)
}

// enqueue pushes to the broadcast channel without blocking the caller.
// The recipient set is captured here, under the lock the caller holds,
// so delivery never reaches a session admitted after the message was
// folded into the room state.
func (r *Room) enqueue(origin string, msg *ServerMessage) {
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.ID == origin {
			continue
		}
		targets = append(targets, s)
	}

	select {
	case r.broadcast <- &outbound{msg: msg, targets: targets}:
	default:
		log.Printf("[Room %s] Broadcast buffer full, dropping %s", r.ID, msg.Type)
	}
}

func (r *Room) setVersion(v int64) {
	r.mu.Lock()
	if v > r.version {
		r.version = v
	}
	r.mu.Unlock()
}

func (r *Room) sessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// runBroadcaster drains the room's channel in order. A single consumer
// preserves each session's emit order end to end.
func (r *Room) runBroadcaster() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case out, ok := <-r.broadcast:
			if !ok {
				return
			}
			r.deliver(out)
		}
	}
}

func (r *Room) deliver(out *outbound) {
	for _, s := range out.targets {
		if err := s.Send(out.msg); err != nil {
			log.Printf("[Room %s] Failed to send %s to session %s: %v",
				r.ID, out.msg.Type, s.ID, err)
		}
	}
}

func (r *Room) shutdown() {
	r.mu.Lock()
	r.closed = true
	for _, s := range r.sessions {
		s.Close()
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.cancel()
}

// shutdownIfEmpty closes the room only if no sessions are present. The
// emptiness check and the closed flag flip share the room lock, so a
// concurrent add either lands before the check or observes the flag.
func (r *Room) shutdownIfEmpty() bool {
	r.mu.Lock()
	if len(r.sessions) > 0 {
		r.mu.Unlock()
		return false
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	return true
}

