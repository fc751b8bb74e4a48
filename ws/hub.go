// Package ws is the session gateway: it upgrades websocket connections,
// decodes inbound session events and plugs them into the presence registry,
// the transformation pipeline and the relay dispatcher.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/sensemesh/sensemesh/infer"
	"github.com/sensemesh/sensemesh/journal"
	"github.com/sensemesh/sensemesh/mesh"
	"github.com/sensemesh/sensemesh/pipeline"
	"github.com/sensemesh/sensemesh/relay"
	"github.com/sensemesh/sensemesh/wire"
)

// Hub manages and serves sessions and routes every inbound event to the
// component that owns it. One goroutine is spawned per message, gesture or
// probe event; nothing an event does blocks another participant's loops.
type Hub struct {
	registry *mesh.Registry
	disp     *relay.Dispatcher
	queues   *relay.Queues
	pipe     *pipeline.Pipeline
	ai       infer.Client
	jnl      *journal.Journal

	hstore *HandlerStore

	// presenceMu serializes registry mutation + snapshot broadcast so every
	// broadcast reflects the registry exactly as of that mutation.
	presenceMu sync.Mutex

	mu  sync.Mutex
	ctx context.Context
}

// NewHub creates a Hub. jnl may be nil (journal disabled).
func NewHub(ai infer.Client, jnl *journal.Journal) *Hub {
	disp := relay.NewDispatcher()
	return &Hub{
		registry: mesh.NewRegistry(),
		disp:     disp,
		queues:   relay.NewQueues(disp),
		pipe:     pipeline.New(ai),
		ai:       ai,
		jnl:      jnl,
		hstore: &HandlerStore{
			handlers: make(map[string]*Handler),
		},
	}
}

// Run owns the hub lifetime: it starts the queue janitor and closes every
// session when ctx is cancelled.
func (hub *Hub) Run(ctx context.Context, stopDoneC chan<- struct{}) {
	hub.mu.Lock()
	hub.ctx = ctx
	hub.mu.Unlock()

	go hub.queues.Run(ctx)

	<-ctx.Done()
	glog.Infof("close sessions ...")
	hub.hstore.close()
	glog.Infof("close sessions done")
	stopDoneC <- struct{}{}
}

func (hub *Hub) baseCtx() context.Context {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.ctx != nil {
		return hub.ctx
	}
	return context.Background()
}

// ServeHTTP handles websocket requests from the peer.
func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// If the upgrade fails, Upgrade replies to the client with an HTTP
	// error response.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("ServeHTTP(): upgrader.Upgrade error: %v", err)
		return
	}

	handler := &Handler{
		hub:      hub,
		conn:     conn,
		connID:   strings.ReplaceAll(uuid.New(), "-", ""),
		dataChan: make(chan *SessionData, dataChanSize),
	}

	conn.SetCloseHandler(func(code int, text string) error {
		glog.V(5).Infof("session closed by peer, session: %s, code: %d", handler, code)
		hub.delHandler(handler.connID)
		return nil
	})

	hub.hstore.add(handler)

	go handler.recvLoop()
	go handler.sendLoop()
}

// delHandler tears a session down: registry leave, sink detach and, if the
// participant had joined, a presence broadcast to everyone remaining.
func (hub *Hub) delHandler(connID string) {
	h := hub.hstore.get(connID)
	if !hub.hstore.del(connID) {
		return
	}

	if h != nil && h.isJoined() {
		hub.presenceMu.Lock()
		hub.disp.Detach(connID)
		snapshot, _ := hub.registry.Leave(connID)
		hub.broadcastPresence(snapshot)
		hub.presenceMu.Unlock()
	}
}

// routeClientMsg dispatches one decoded inbound event. A non-nil return is
// reported to the sender; the session stays open.
func (hub *Hub) routeClientMsg(h *Handler, req *wire.ClientMsg) *wire.Error {
	switch {
	case req.Join != nil:
		return hub.handleJoin(h, req.Join)
	case req.SendMessage != nil:
		return hub.handleSendMessage(h, req.SendMessage)
	case req.GestureBuffer != nil:
		return hub.handleGestureBuffer(h, req.GestureBuffer)
	case req.AudioProbe != nil:
		return hub.handleAudioProbe(h, req.AudioProbe)
	}
	glog.Errorf("routeClientMsg(): unsupported request, session: %s", h)
	return invalidArgumentError("unsupported request")
}

func (hub *Hub) handleJoin(h *Handler, req *wire.JoinReq) *wire.Error {
	if req.DisplayName == "" {
		return invalidArgumentError("display_name: required")
	}
	profile := req.Profile
	if profile == "" {
		profile = wire.ProfileNone
	}
	if !profile.Valid() {
		return invalidArgumentError(fmt.Sprintf("profile: unknown value %q", req.Profile))
	}

	h.setJoined(req.DisplayName)

	hub.presenceMu.Lock()
	snapshot := hub.registry.Join(wire.Participant{
		ConnID:      h.connID,
		DisplayName: req.DisplayName,
		Profile:     profile,
	})
	hub.disp.Attach(h.connID, h)
	hub.broadcastPresence(snapshot)
	hub.presenceMu.Unlock()

	return nil
}

func (hub *Hub) handleSendMessage(h *Handler, req *wire.SendMessageReq) *wire.Error {
	if !h.isJoined() {
		return invalidArgumentError("join first")
	}
	if req.ReceiverID == "" {
		return invalidArgumentError("receiver_id: required")
	}
	if !req.DeclaredType.ValidDeclared() {
		return invalidArgumentError(fmt.Sprintf("declared_type: unknown value %q", req.DeclaredType))
	}

	// The sequence number is assigned here, synchronously in the receive
	// loop, before any asynchronous work begins. It is the sole ordering
	// key for this (sender, receiver) pair.
	msg := &wire.Message{
		SenderID:     h.connID,
		ReceiverID:   req.ReceiverID,
		Content:      req.Content,
		DeclaredType: req.DeclaredType,
	}
	msg.Seq = hub.queues.Enqueue(msg.SenderID, msg.ReceiverID)

	go hub.transformAndRelay(msg)
	return nil
}

// transformAndRelay runs the pipeline for one message and releases its
// sequence slot no matter what: an unreleased slot would stall every later
// message for the pair.
func (hub *Hub) transformAndRelay(msg *wire.Message) {
	receiver, ok := hub.registry.Lookup(msg.ReceiverID)
	if !ok {
		glog.V(5).Infof("transformAndRelay(): unknown receiver %s, seq %d released", msg.ReceiverID, msg.Seq)
		hub.queues.Complete(msg.SenderID, msg.ReceiverID, msg.Seq, "", nil)
		return
	}

	d := hub.pipe.Transform(hub.baseCtx(), msg, receiver)
	hub.queues.Complete(msg.SenderID, msg.ReceiverID, msg.Seq, receiver.ConnID, &wire.ServerMsg{Message: d})
}

func (hub *Hub) handleGestureBuffer(h *Handler, req *wire.GestureBufferReq) *wire.Error {
	if !h.isJoined() {
		return invalidArgumentError("join first")
	}
	if len(req.Landmarks) != wire.GestureBufferLen {
		return invalidArgumentError(fmt.Sprintf("landmarks: expect %d values, got %d",
			wire.GestureBufferLen, len(req.Landmarks)))
	}

	h.Lock()
	displayName := h.displayName
	h.Unlock()

	go hub.recognizeGesture(h.connID, displayName, req.Landmarks)
	return nil
}

// recognizeGesture bypasses the ordering queues: a gesture echo is a
// broadcast signal, not a conversational message.
func (hub *Hub) recognizeGesture(connID, displayName string, landmarks []float64) {
	label, err := hub.ai.PredictSign(hub.baseCtx(), landmarks)
	if err != nil {
		glog.V(5).Infof("recognizeGesture(): predict failed, suppressed: %v", err)
		return
	}
	if infer.NoDetection(label) {
		glog.V(5).Infof("recognizeGesture(): no detection (%q), suppressed", label)
		return
	}

	now := time.Now().UnixMilli()
	hub.disp.DeliverToOne(connID, &wire.ServerMsg{Message: &wire.Delivery{
		SenderID: connID,
		Content:  label,
		Type:     wire.TypeText,
		Meta:     map[string]interface{}{"gesture": true, "self": true},
		Ts:       now,
	}})
	hub.disp.BroadcastExcept(connID, &wire.ServerMsg{Message: &wire.Delivery{
		SenderID: connID,
		Content:  fmt.Sprintf("%s signs: %s", displayName, label),
		Type:     wire.TypeText,
		Meta:     map[string]interface{}{"gesture": true},
		Ts:       now,
	}})
}

func (hub *Hub) handleAudioProbe(h *Handler, req *wire.AudioProbeReq) *wire.Error {
	if !h.isJoined() {
		return invalidArgumentError("join first")
	}
	if req.AudioBase64 == "" {
		return invalidArgumentError("audio_base64: required")
	}

	go hub.probeHazard(h.connID, req.AudioBase64)
	return nil
}

func (hub *Hub) probeHazard(connID, audioBase64 string) {
	res, err := hub.ai.DetectHazard(hub.baseCtx(), audioBase64)
	if err != nil {
		glog.V(5).Infof("probeHazard(): detect failed, suppressed: %v", err)
		return
	}
	hub.HazardAlert(res.Event, res.Urgency, connID)
}

// HazardAlert gates a hazard event: only critical urgency broadcasts, to
// everyone including the origin. The announcement bridge feeds external
// events through the same gate.
func (hub *Hub) HazardAlert(event string, urgency wire.Urgency, origin string) {
	if urgency != wire.UrgencyCritical {
		glog.V(5).Infof("HazardAlert(): urgency %q discarded, event: %s", urgency, event)
		return
	}

	glog.Infof("HazardAlert(): broadcasting event: %s, origin: %s", event, origin)
	hub.disp.BroadcastAll(&wire.ServerMsg{Hazard: &wire.Hazard{
		Event:   event,
		Urgency: urgency,
	}})
	hazardAlertsTotal.Inc()

	hub.jnl.Append(journal.Alert{
		Event:     event,
		Urgency:   urgency,
		ProbeConn: origin,
	})
}

func (hub *Hub) broadcastPresence(snapshot []wire.Participant) {
	hub.disp.BroadcastAll(&wire.ServerMsg{Presence: &wire.Presence{Participants: snapshot}})
	connectedParticipants.Set(float64(len(snapshot)))
}
