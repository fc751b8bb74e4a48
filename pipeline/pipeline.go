// Package pipeline reshapes a message for its receiver's accessibility
// profile, calling the inference service as needed. Transformations are
// receiver-centric: accessibility needs are properties of who consumes the
// message, not who sends it.
package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang/glog"

	"github.com/sensemesh/sensemesh/infer"
	"github.com/sensemesh/sensemesh/wire"
)

const (
	audioErrorText = "Audio Error"
	imageErrorText = "Image Error"

	// text this short carries no tone worth analyzing.
	minAnalyzeLen = 3
)

// Pipeline turns a Message plus the receiver's participant record into a
// Delivery. It is deterministic given the same inputs and inference
// results; every inference failure is recovered locally into a degraded but
// valid delivery, so callers never see an error.
type Pipeline struct {
	ai infer.Client
}

func New(ai infer.Client) *Pipeline {
	return &Pipeline{ai: ai}
}

// Transform applies the routing table, first match wins:
// audio, then image-for-blind, then text, then pass-through.
func (p *Pipeline) Transform(ctx context.Context, msg *wire.Message, receiver wire.Participant) *wire.Delivery {
	var d *wire.Delivery
	switch {
	case msg.DeclaredType == wire.TypeAudio:
		d = p.transformAudio(ctx, msg, receiver)
	case msg.DeclaredType == wire.TypeImage && receiver.Profile == wire.ProfileBlind:
		d = p.transformImage(ctx, msg)
	case msg.DeclaredType == wire.TypeText:
		d = p.transformText(ctx, msg, receiver)
	default:
		d = passThrough(msg)
	}
	d.SenderID = msg.SenderID
	d.Ts = time.Now().UnixMilli()
	return d
}

// transformAudio: transcription is mandatory; emotion tagging is
// best-effort. A deaf receiver gets the text rendition, everyone else keeps
// the original audio with the transcript attached.
func (p *Pipeline) transformAudio(ctx context.Context, msg *wire.Message, receiver wire.Participant) *wire.Delivery {
	transcript, err := p.ai.Transcribe(ctx, msg.Content)
	if err != nil {
		glog.V(5).Infof("pipeline: transcribe failed, degrading: %v", err)
		return &wire.Delivery{Content: audioErrorText, Type: wire.TypeText}
	}

	finalText := transcript
	if emotion, err := p.ai.AnalyzeEmotion(ctx, transcript); err == nil {
		finalText = transcript + " [" + strings.ToUpper(emotion) + "]"
	} else {
		glog.V(5).Infof("pipeline: emotion tag skipped: %v", err)
	}

	if receiver.Profile == wire.ProfileDeaf {
		return &wire.Delivery{
			Content: finalText,
			Type:    wire.TypeText,
			Meta:    map[string]interface{}{"original_audio": true},
		}
	}
	return &wire.Delivery{
		Content: msg.Content,
		Type:    wire.TypeAudio,
		Meta:    map[string]interface{}{"transcription": finalText},
	}
}

// transformImage: only reached for blind receivers. A successful caption is
// delivered as a synth request so the receiving side speaks it aloud.
func (p *Pipeline) transformImage(ctx context.Context, msg *wire.Message) *wire.Delivery {
	desc, err := p.ai.Describe(ctx, msg.Content)
	if err != nil {
		glog.V(5).Infof("pipeline: describe failed, degrading: %v", err)
		return &wire.Delivery{Content: imageErrorText, Type: wire.TypeText}
	}
	return &wire.Delivery{Content: desc, Type: wire.TypeSynthRequest}
}

// transformText: short content short-circuits before any inference call;
// emotion analysis is best-effort and only changes the delivery for blind
// receivers.
func (p *Pipeline) transformText(ctx context.Context, msg *wire.Message, receiver wire.Participant) *wire.Delivery {
	if utf8.RuneCountInString(msg.Content) < minAnalyzeLen {
		return passThrough(msg)
	}

	emotion, err := p.ai.AnalyzeEmotion(ctx, msg.Content)
	if err != nil {
		glog.V(5).Infof("pipeline: emotion analysis skipped: %v", err)
		return passThrough(msg)
	}

	if receiver.Profile == wire.ProfileBlind {
		return &wire.Delivery{
			Content: msg.Content + ". The tone is " + emotion + ".",
			Type:    wire.TypeText,
			Meta:    map[string]interface{}{"auto_read": true},
		}
	}
	return &wire.Delivery{Content: msg.Content, Type: wire.TypeText}
}

func passThrough(msg *wire.Message) *wire.Delivery {
	return &wire.Delivery{Content: msg.Content, Type: msg.DeclaredType}
}
