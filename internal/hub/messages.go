package hub

import (
	"drawspace-backend/internal/model"
)

// Canvas room protocol message types (client <-> server)
const (
	MsgJoinCanvas         = "join-canvas"
	MsgUserIdentify       = "user-identify"
	MsgCanvasUpdate       = "canvas-update"
	MsgCursorMove         = "cursor-move"
	MsgCanvasState        = "canvas-state"
	MsgCollaboratorJoined = "collaborator-joined"
	MsgCollaboratorLeft   = "collaborator-left"
	MsgError              = "error"
)

// OperationFor maps an event kind onto its wire operation name.
// Stroke events travel as "draw"; the rest match 1:1.
func OperationFor(kind model.EventKind) string {
	if kind == model.EventKindStroke {
		return "draw"
	}
	return string(kind)
}

// KindForOperation is the inverse of OperationFor
func KindForOperation(op string) model.EventKind {
	if op == "draw" {
		return model.EventKindStroke
	}
	return model.EventKind(op)
}

// ClientMessage inbound frame from a connected client
type ClientMessage struct {
	Type      string              `json:"type"`
	CanvasID  string              `json:"canvasId,omitempty"`
	GuestName string              `json:"guestName,omitempty"`
	GuestID   string              `json:"guestIdentifier,omitempty"`
	Operation string              `json:"operation,omitempty"` // draw|erase|text|clear|background-color
	Event     *model.DrawingEvent `json:"canvasData,omitempty"`
	X         float64             `json:"x,omitempty"`
	Y         float64             `json:"y,omitempty"`
}

// ServerMessage outbound frame to a connected client
type ServerMessage struct {
	Type      string              `json:"type"`
	SessionID string              `json:"socketId,omitempty"`
	Operation string              `json:"operation,omitempty"`
	Event     *model.DrawingEvent `json:"canvasData,omitempty"`
	Cursor    *model.Point        `json:"cursor,omitempty"`
	User      *PresenceInfo       `json:"user,omitempty"`
	Presence  []PresenceInfo      `json:"presence,omitempty"`
	Snapshot  string              `json:"snapshot,omitempty"`
	Version   int64               `json:"version,omitempty"`
	Error     string              `json:"error,omitempty"`
	Code      string              `json:"code,omitempty"`
}
