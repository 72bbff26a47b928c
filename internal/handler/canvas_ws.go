package handler

import (
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"

	"drawspace-backend/internal/hub"
	"drawspace-backend/internal/model"
	"drawspace-backend/pkg/apperr"

	"github.com/google/uuid"
)

// CanvasWSHandler WebSocket 캔버스 협업 핸들러
type CanvasWSHandler struct {
	rooms *hub.RoomHub
}

// NewCanvasWSHandler CanvasWSHandler 생성
func NewCanvasWSHandler(rooms *hub.RoomHub) *CanvasWSHandler {
	return &CanvasWSHandler{rooms: rooms}
}

// HandleWebSocket WebSocket 연결 처리
//
// Frame order matters: a guest may send user-identify before join-canvas
// to pick a display name; join-canvas must arrive before any canvas-update
// or cursor-move. Frames for a canvas the session never joined are dropped
// with an error reply rather than closing the connection.
func (h *CanvasWSHandler) HandleWebSocket(c *websocket.Conn) {
	var (
		session   *hub.Session
		principal model.Principal
		guestName string
	)

	// 인증된 사용자 정보 (업그레이드 미들웨어에서 전달)
	if userID, ok := c.Locals("userID").(int64); ok && userID != 0 {
		principal.UserID = userID
		if nickname, ok := c.Locals("nickname").(string); ok {
			principal.Name = nickname
		}
	}

	defer func() {
		if session != nil {
			h.rooms.Leave(session.ID)
		}
		c.Close()
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var msg hub.ClientMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			continue
		}

		// 모든 수신 프레임은 생존 신호로 취급
		if session != nil {
			h.rooms.Heartbeat(session.ID)
		}

		switch msg.Type {
		case hub.MsgUserIdentify:
			// 입장 전에만 게스트 정보 변경 가능
			if session != nil {
				continue
			}
			if msg.GuestName != "" {
				guestName = msg.GuestName
			}
			if principal.UserID == 0 && msg.GuestID != "" {
				principal.GuestID = msg.GuestID
			}

		case hub.MsgJoinCanvas:
			if session != nil {
				h.rooms.Leave(session.ID)
				session = nil
			}
			if principal.UserID == 0 && principal.GuestID == "" {
				principal.GuestID = uuid.New().String()
			}
			displayName := principal.Name
			if displayName == "" {
				displayName = guestName
			}

			s, state, err := h.rooms.Join(msg.CanvasID, principal, displayName, c)
			if err != nil {
				writeError(c, err)
				continue
			}
			session = s

			reply := hub.ServerMessage{
				Type:      hub.MsgCanvasState,
				SessionID: session.ID,
				Snapshot:  state.Snapshot,
				Version:   state.Version,
				Presence:  state.Presence,
			}
			if err := session.Send(&reply); err != nil {
				log.Printf("⚠️ [CanvasWS] canvas-state 전송 실패: %v", err)
			}

		case hub.MsgCanvasUpdate:
			if session == nil || msg.Event == nil {
				continue
			}
			if msg.Event.Kind == "" {
				msg.Event.Kind = hub.KindForOperation(msg.Operation)
			}
			if err := h.rooms.RelayEvent(session.ID, msg.Event); err != nil {
				sendError(session, err)
			}

		case hub.MsgCursorMove:
			if session == nil {
				continue
			}
			if err := h.rooms.MoveCursor(session.ID, model.Point{X: msg.X, Y: msg.Y}); err != nil {
				sendError(session, err)
			}
		}
	}
}

// writeError 에러 프레임 전송 (입장 전, 브로드캐스터가 아직 없는 연결에만 사용)
func writeError(c *websocket.Conn, err error) {
	if werr := c.WriteJSON(errorMessage(err)); werr != nil {
		log.Printf("⚠️ [CanvasWS] 에러 프레임 전송 실패: %v", werr)
	}
}

// sendError 입장 후 에러 프레임 전송 (세션 쓰기 락 공유)
func sendError(session *hub.Session, err error) {
	if serr := session.Send(errorMessage(err)); serr != nil {
		log.Printf("⚠️ [CanvasWS] 에러 프레임 전송 실패: %v", serr)
	}
}

func errorMessage(err error) *hub.ServerMessage {
	return &hub.ServerMessage{
		Type:  hub.MsgError,
		Error: err.Error(),
		Code:  string(apperr.CodeOf(err)),
	}
}
