package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/sensemesh/sensemesh/wire"
)

type SessionError int

const (
	ReadError    SessionError = 1
	WriteError   SessionError = 2
	PingError    SessionError = 3
	BadRequest   SessionError = 4
	ServerStop   SessionError = 5
	SlowConsumer SessionError = 6
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// Audio and image payloads arrive base64-encoded in a single frame.
	readLimit = 8 << 20

	dataChanSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The node runs behind a reverse proxy that owns origin checks.
		return true
	},
}

// Handler manages one active websocket connection. Join state lives here
// until the participant announces a profile; after that the registry owns
// the participant record.
type Handler struct {
	sync.Mutex

	hub  *Hub
	conn *websocket.Conn

	connID      string
	displayName string
	joined      bool

	dataChan chan *SessionData
	closing  bool
}

// SessionData is the data structure for `dataChan`.
type SessionData struct {
	Error     SessionError
	ServerMsg *wire.ServerMsg
}

func (h *Handler) String() string {
	h.Lock()
	defer h.Unlock()
	return fmt.Sprintf("conn: %s, name: %s, joined: %v", h.connID, h.displayName, h.joined)
}

func (h *Handler) setJoined(displayName string) {
	h.Lock()
	h.displayName = displayName
	h.joined = true
	h.Unlock()
}

func (h *Handler) isJoined() bool {
	h.Lock()
	defer h.Unlock()
	return h.joined
}

// Send implements relay.Sink. It never blocks: a participant that cannot
// drain its buffer loses broadcast frames instead of stalling the relay.
// Directed deliveries are never dropped silently; a conversational gap the
// receiver cannot see is worse than a reconnect, so the session closes.
func (h *Handler) Send(msg *wire.ServerMsg) {
	h.Lock()
	if h.closing {
		h.Unlock()
		return
	}
	select {
	case h.dataChan <- &SessionData{ServerMsg: msg}:
		h.Unlock()
	default:
		h.Unlock()
		if msg.Message != nil {
			glog.Errorf("ws: slow consumer, closing session, conn: %s", h.connID)
			// goroutine: close re-enters the presence lock via delHandler.
			go h.close(SlowConsumer)
			return
		}
		glog.Errorf("ws: slow consumer, frame dropped, conn: %s", h.connID)
	}
}

func (h *Handler) sendError(cause SessionError) {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return
	}
	select {
	case h.dataChan <- &SessionData{Error: cause}:
	default:
		// buffer full, close directly; goroutine avoids lock recursion.
		go h.close(cause)
	}
}

func (h *Handler) close(cause SessionError) {
	h.Lock()
	if h.closing {
		h.Unlock()
		return
	}
	h.closing = true
	close(h.dataChan)
	h.Unlock()

	h.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = h.conn.WriteMessage(websocket.CloseMessage, []byte{})
	h.conn.Close()

	if cause != ServerStop {
		glog.V(5).Infof("session closed, cause: %d, %s", cause, h)
		h.hub.delHandler(h.connID)
	}
}

func sendServerMsg(conn *websocket.Conn, msg *wire.ServerMsg) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, out)
}

func (h *Handler) recvLoop() {
	defer func() { glog.V(5).Infof("recvLoop(): exited, session: %s", h) }()

	h.conn.SetReadLimit(readLimit)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(s string) error {
		h.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		h.Lock()
		closing := h.closing
		h.Unlock()
		if closing {
			return
		}

		msgType, msg, err := h.conn.ReadMessage()
		if err != nil {
			glog.V(5).Infof("recvLoop(): read error: %v", err)
			h.sendError(ReadError)
			return
		}

		if msgType != websocket.TextMessage {
			glog.Errorf("recvLoop(): unexpected message type: %d, session: %s", msgType, h)
			h.Send(&wire.ServerMsg{Error: invalidArgumentError("websocket only supports TextMessage")})
			h.sendError(BadRequest)
			return
		}

		var req wire.ClientMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			glog.Errorf("recvLoop(): message error: %v, session: %s", err, h)
			h.Send(&wire.ServerMsg{Error: invalidArgumentError(fmt.Sprintf("unmarshal error: %v", err))})
			h.sendError(BadRequest)
			return
		}

		// Validation failures are reported back and the session continues;
		// only transport-level trouble closes the connection.
		if werr := h.hub.routeClientMsg(h, &req); werr != nil {
			h.Send(&wire.ServerMsg{Error: werr})
		}
	}
}

func (h *Handler) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, session: %s", h)
	}()

	for {
		select {
		case v, ok := <-h.dataChan:
			if !ok { // chan was closed
				h.conn.Close()
				return
			}

			if v.Error > 0 {
				h.close(v.Error)
				return
			} else if v.ServerMsg == nil {
				// should not happen.
				panic(fmt.Sprintf("sendLoop(): unknown data from dataChan: %#+v", v))
			}

			if err := sendServerMsg(h.conn, v.ServerMsg); err != nil {
				glog.Errorf("sendLoop(): error write message, session: %s, err: %v", h, err)
				h.sendError(WriteError)
				return
			}
		case <-pingTicker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.V(5).Infof("sendLoop(): error write ping, session: %s, err: %v", h, err)
				h.sendError(PingError)
				return
			}
		}
	}
}

func invalidArgumentError(params ...string) *wire.Error {
	return &wire.Error{Code: wire.ErrorCodeInvalidArguments, Params: params}
}
