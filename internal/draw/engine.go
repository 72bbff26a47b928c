package draw

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"drawspace-backend/internal/model"
)

// UndoDepth bounds the history stacks; pushing past it drops the oldest entry
const UndoDepth = 20

// Relay accepts a committed local event for delivery to the room.
// Implementations must not block: local rendering never waits on the
// network.
type Relay interface {
	Relay(event *model.DrawingEvent)
}

// Engine rasterizes local pointer input and replays remote events onto
// the same surface. Local and remote paths share one rendering routine,
// so a stroke looks identical regardless of which side produced it.
type Engine struct {
	mu         sync.Mutex
	width      int
	height     int
	background color.RGBA
	layer      *image.RGBA

	events []*model.DrawingEvent // committed local events, oldest first
	undo   []engineState
	redo   []engineState

	current *strokeInProgress
	relay   Relay
}

// engineState is one undo/redo checkpoint: the full stroke layer plus
// everything a restore has to roll back with it
type engineState struct {
	layer      *image.RGBA
	background color.RGBA
	events     []*model.DrawingEvent
}

type strokeInProgress struct {
	painter *painter
	event   *model.DrawingEvent
	last    model.Point
}

// NewEngine creates an engine over a blank canvas. The relay may be nil
// for a purely local (offline) surface.
func NewEngine(width, height int, backgroundHex string, relay Relay) (*Engine, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	bg, err := ParseColor(backgroundHex)
	if err != nil {
		return nil, err
	}
	return &Engine{
		width:      width,
		height:     height,
		background: bg,
		layer:      image.NewRGBA(image.Rect(0, 0, width, height)),
		relay:      relay,
	}, nil
}

// BeginStroke starts a local stroke; the first point is stamped
// immediately. A history checkpoint is pushed before any pixel changes.
func (e *Engine) BeginStroke(tool, colorHex string, width float64, p model.Point) error {
	c, err := ParseColor(colorHex)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.commitLocked()
	}
	e.pushUndoLocked()

	kind := model.EventKindStroke
	if tool == model.ToolEraser {
		kind = model.EventKindErase
	}
	pt := newPainter(e.layer, toolColor(tool, c), width, toolMode(tool))
	pt.stamp(int(p.X+0.5), int(p.Y+0.5))

	e.current = &strokeInProgress{
		painter: pt,
		event: &model.DrawingEvent{
			Kind:   kind,
			Points: []model.Point{p},
			Color:  colorHex,
			Width:  width,
			Tool:   tool,
		},
		last: p,
	}
	return nil
}

// ExtendStroke renders the next segment of the in-progress stroke
func (e *Engine) ExtendStroke(p model.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}
	e.current.painter.line(e.current.last, p)
	e.current.event.Points = append(e.current.event.Points, p)
	e.current.last = p
}

// EndStroke commits the in-progress stroke and hands it to the relay
func (e *Engine) EndStroke() *model.DrawingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked()
}

// PlaceText renders a string at a click point and commits immediately
func (e *Engine) PlaceText(p model.Point, text, colorHex string) error {
	if text == "" {
		return fmt.Errorf("empty text")
	}
	c, err := ParseColor(colorHex)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pushUndoLocked()
	drawText(e.layer, p, text, c)
	e.finishLocked(&model.DrawingEvent{
		Kind:   model.EventKindText,
		Points: []model.Point{p},
		Color:  colorHex,
		Tool:   model.ToolText,
		Text:   text,
	})
	return nil
}

// Clear wipes the stroke layer
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pushUndoLocked()
	e.layer = image.NewRGBA(image.Rect(0, 0, e.width, e.height))
	e.finishLocked(&model.DrawingEvent{Kind: model.EventKindClear})
}

// SetBackground changes the backdrop color behind the stroke layer
func (e *Engine) SetBackground(colorHex string) error {
	bg, err := ParseColor(colorHex)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pushUndoLocked()
	e.background = bg
	e.finishLocked(&model.DrawingEvent{
		Kind:  model.EventKindBackgroundColor,
		Color: colorHex,
	})
	return nil
}

// Apply replays a remote event through the local rendering routine.
// Remote events never touch the history stacks or the local event list.
func (e *Engine) Apply(event *model.DrawingEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderLocked(event)
}

// Undo restores the most recent checkpoint; reports whether anything changed
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.undo) == 0 {
		return false
	}
	e.redo = append(e.redo, e.snapshotLocked())
	e.restoreLocked(e.undo[len(e.undo)-1])
	e.undo = e.undo[:len(e.undo)-1]
	return true
}

// Redo reverses the most recent Undo
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.redo) == 0 {
		return false
	}
	e.undo = append(e.undo, e.snapshotLocked())
	e.restoreLocked(e.redo[len(e.redo)-1])
	e.redo = e.redo[:len(e.redo)-1]
	return true
}

// LoadSnapshot replaces the surface with a replay of a folded event
// log, as served on join or reconnect. History is reset: snapshots are
// a hard boundary for undo.
func (e *Engine) LoadSnapshot(data string) error {
	events := model.UnfoldSnapshot(data)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.layer = image.NewRGBA(image.Rect(0, 0, e.width, e.height))
	e.events = nil
	e.undo = nil
	e.redo = nil
	for i := range events {
		if err := e.renderLocked(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

// Image returns the composited view: stroke layer over background
func (e *Engine) Image() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return compose(e.layer, e.background)
}

// Events returns a copy of the committed local event list
func (e *Engine) Events() []*model.DrawingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.DrawingEvent, len(e.events))
	copy(out, e.events)
	return out
}

// Background reports the current backdrop color
func (e *Engine) Background() color.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.background
}

func (e *Engine) commitLocked() *model.DrawingEvent {
	if e.current == nil {
		return nil
	}
	event := e.current.event
	e.current = nil
	e.finishLocked(event)
	return event
}

// finishLocked records a committed local event and relays it
func (e *Engine) finishLocked(event *model.DrawingEvent) {
	event.Stamp()
	e.events = append(e.events, event)
	if e.relay != nil {
		e.relay.Relay(event)
	}
}

// renderLocked is the shared rendering routine for remote replay and
// snapshot seeding
func (e *Engine) renderLocked(event *model.DrawingEvent) error {
	switch event.Kind {
	case model.EventKindStroke, model.EventKindErase:
		c, err := ParseColor(event.Color)
		if err != nil {
			return err
		}
		tool := event.Tool
		if event.Kind == model.EventKindErase {
			tool = model.ToolEraser
		}
		pt := newPainter(e.layer, toolColor(tool, c), event.Width, toolMode(tool))
		if len(event.Points) == 1 {
			pt.stamp(int(event.Points[0].X+0.5), int(event.Points[0].Y+0.5))
			return nil
		}
		for i := 1; i < len(event.Points); i++ {
			pt.line(event.Points[i-1], event.Points[i])
		}

	case model.EventKindText:
		c, err := ParseColor(event.Color)
		if err != nil {
			return err
		}
		if len(event.Points) == 0 {
			return model.ErrNoPoints
		}
		drawText(e.layer, event.Points[0], event.Text, c)

	case model.EventKindClear:
		e.layer = image.NewRGBA(image.Rect(0, 0, e.width, e.height))

	case model.EventKindBackgroundColor:
		bg, err := ParseColor(event.Color)
		if err != nil {
			return err
		}
		e.background = bg

	default:
		return model.ErrUnknownEventKind
	}
	return nil
}

func (e *Engine) pushUndoLocked() {
	e.undo = append(e.undo, e.snapshotLocked())
	if len(e.undo) > UndoDepth {
		e.undo = e.undo[1:]
	}
	e.redo = nil
}

func (e *Engine) snapshotLocked() engineState {
	events := make([]*model.DrawingEvent, len(e.events))
	copy(events, e.events)
	return engineState{
		layer:      cloneLayer(e.layer),
		background: e.background,
		events:     events,
	}
}

func (e *Engine) restoreLocked(s engineState) {
	e.layer = cloneLayer(s.layer)
	e.background = s.background
	e.events = make([]*model.DrawingEvent, len(s.events))
	copy(e.events, s.events)
}

// toolMode maps a tool name to its compositing mode
func toolMode(tool string) paintMode {
	switch tool {
	case model.ToolBrush:
		return paintBlend
	case model.ToolEraser:
		return paintErase
	default:
		return paintOpaque
	}
}

// toolColor applies the brush's semi-transparency when the caller
// hands an opaque color
func toolColor(tool string, c color.RGBA) color.RGBA {
	if tool == model.ToolBrush && c.A == 0xff {
		c.A = 0x80
	}
	return c
}
