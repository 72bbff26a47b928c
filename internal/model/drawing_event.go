package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Point a single canvas coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawingEvent one atomic drawing operation. Transient: relayed once,
// folded into the canvas snapshot, never stored as an individual row.
type DrawingEvent struct {
	Kind      EventKind `json:"kind"`
	Points    []Point   `json:"points,omitempty"`
	Color     string    `json:"color,omitempty"`
	Width     float64   `json:"width,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp int64     `json:"timestamp"` // origin-assigned, monotonic per session
}

// Tool names carried on stroke events
const (
	ToolPen    = "pen"
	ToolBrush  = "brush"
	ToolEraser = "eraser"
	ToolText   = "text"
)

var (
	ErrUnknownEventKind = errors.New("unknown drawing event kind")
	ErrNoPoints         = errors.New("stroke event requires at least one point")
)

// Validate checks the event's shape for its kind
func (e *DrawingEvent) Validate() error {
	if !e.Kind.Mutates() {
		return ErrUnknownEventKind
	}
	switch e.Kind {
	case EventKindStroke, EventKindErase:
		if len(e.Points) == 0 {
			return ErrNoPoints
		}
	case EventKindText:
		if len(e.Points) == 0 {
			return ErrNoPoints
		}
	}
	return nil
}

// Stamp assigns the origin timestamp if the client did not set one
func (e *DrawingEvent) Stamp() {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
}

// Fold appends the event to a serialized snapshot (a JSON array of events).
// Clear resets the fold to empty; background-color events survive a fold so
// late joiners see the current background.
func Fold(snapshot string, event *DrawingEvent) (string, error) {
	if event.Kind == EventKindClear {
		return "[]", nil
	}

	var events []json.RawMessage
	if snapshot != "" && snapshot != "[]" {
		if err := json.Unmarshal([]byte(snapshot), &events); err != nil {
			return snapshot, err
		}
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return snapshot, err
	}
	events = append(events, raw)

	out, err := json.Marshal(events)
	if err != nil {
		return snapshot, err
	}
	return string(out), nil
}

// UnfoldSnapshot parses a serialized snapshot back into events, skipping
// entries that no longer parse (forward compatibility with older blobs)
func UnfoldSnapshot(snapshot string) []DrawingEvent {
	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(snapshot), &raws); err != nil {
		return nil
	}

	events := make([]DrawingEvent, 0, len(raws))
	for _, raw := range raws {
		var ev DrawingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}
