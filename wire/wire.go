// Package wire defines the JSON envelopes exchanged over the websocket
// gateway. Client and server messages are unions: exactly one field is set
// per frame.
package wire

// Profile is a participant's declared accessibility profile. It is fixed
// for the lifetime of the session and drives receiver-side transformations.
type Profile string

const (
	ProfileDeaf  Profile = "deaf"
	ProfileBlind Profile = "blind"
	ProfileMute  Profile = "mute"
	ProfileNone  Profile = "none"
)

func (p Profile) Valid() bool {
	switch p {
	case ProfileDeaf, ProfileBlind, ProfileMute, ProfileNone:
		return true
	}
	return false
}

// ContentType classifies message content. Clients declare text, audio or
// image; deliveries may additionally carry hazard or synth_request.
type ContentType string

const (
	TypeText         ContentType = "text"
	TypeAudio        ContentType = "audio"
	TypeImage        ContentType = "image"
	TypeHazard       ContentType = "hazard"
	TypeSynthRequest ContentType = "synth_request"
)

func (t ContentType) ValidDeclared() bool {
	switch t {
	case TypeText, TypeAudio, TypeImage:
		return true
	}
	return false
}

// Urgency is the hazard-detection severity. Only critical gates a broadcast.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyCritical Urgency = "critical"
)

// Gesture buffers are fixed-shape: 30 frames of 150 landmark values each.
const (
	GestureFrames    = 30
	GestureFeatures  = 150
	GestureBufferLen = GestureFrames * GestureFeatures
)

// Participant is one connected member of the mesh.
type Participant struct {
	ConnID      string  `json:"conn_id"`
	DisplayName string  `json:"display_name"`
	Profile     Profile `json:"profile"`
}

// Message is a directed conversational message as accepted by the gateway.
// Seq is assigned at enqueue time, before any asynchronous work, and is the
// sole ordering key per (sender, receiver) pair.
type Message struct {
	SenderID     string
	ReceiverID   string
	Content      string
	DeclaredType ContentType
	Seq          uint64
}

// Delivery is a transformed message as emitted to a receiver. Immutable
// once produced.
type Delivery struct {
	SenderID string                 `json:"sender_id"`
	Content  string                 `json:"content"`
	Type     ContentType            `json:"type"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	Ts       int64                  `json:"ts"`
}

type JoinReq struct {
	DisplayName string  `json:"display_name"`
	Profile     Profile `json:"profile"`
}

type SendMessageReq struct {
	ReceiverID   string      `json:"receiver_id"`
	Content      string      `json:"content"`
	DeclaredType ContentType `json:"declared_type"`
}

type GestureBufferReq struct {
	Landmarks []float64 `json:"landmarks"`
}

type AudioProbeReq struct {
	AudioBase64 string `json:"audio_base64"`
}

// ClientMsg is the inbound union.
type ClientMsg struct {
	Join          *JoinReq          `json:"join,omitempty"`
	SendMessage   *SendMessageReq   `json:"send_message,omitempty"`
	GestureBuffer *GestureBufferReq `json:"gesture_buffer,omitempty"`
	AudioProbe    *AudioProbeReq    `json:"audio_probe,omitempty"`
}

type Presence struct {
	Participants []Participant `json:"participants"`
}

type Hazard struct {
	Event   string  `json:"event"`
	Urgency Urgency `json:"urgency"`
}

const (
	ErrorCodeInvalidArguments = 3
	ErrorCodeInternal         = 13
)

// Error is reported back to the offending client only; raw upstream errors
// never appear in Params.
type Error struct {
	Code   int32    `json:"code"`
	Params []string `json:"params,omitempty"`
}

// ServerMsg is the outbound union.
type ServerMsg struct {
	Presence *Presence `json:"presence,omitempty"`
	Message  *Delivery `json:"message,omitempty"`
	Hazard   *Hazard   `json:"hazard,omitempty"`
	Error    *Error    `json:"error,omitempty"`
}
