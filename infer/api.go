package infer

import (
	"context"
	"strings"

	"github.com/sensemesh/sensemesh/wire"
)

// HazardResult is the outcome of a hazard probe.
type HazardResult struct {
	Event   string
	Urgency wire.Urgency
}

// Client wraps the external inference service. Every call carries a bounded
// timeout and returns either a result or a typed *Error; callers must treat
// any error as "capability unavailable" and apply their own fallback.
type Client interface {
	// Transcribe converts base64-encoded audio to text.
	Transcribe(ctx context.Context, audioBase64 string) (string, error)

	// AnalyzeEmotion classifies the emotional tone of text.
	AnalyzeEmotion(ctx context.Context, text string) (string, error)

	// Describe captions a base64-encoded image.
	Describe(ctx context.Context, imageBase64 string) (string, error)

	// PredictSign classifies a 30x150 landmark buffer. The returned label
	// may be a no-detection sentinel, see NoDetection.
	PredictSign(ctx context.Context, landmarks []float64) (string, error)

	// DetectHazard classifies base64-encoded ambient audio.
	DetectHazard(ctx context.Context, audioBase64 string) (HazardResult, error)
}

// NoDetection reports whether a PredictSign label is one of the service's
// no-detection sentinels: empty, "Unknown", the low-confidence marker "...",
// or an error marker such as "Error: Model Missing" / "Shape Error".
func NoDetection(label string) bool {
	switch label {
	case "", "...", "Unknown", "Shape Error":
		return true
	}
	return strings.HasPrefix(label, "Error")
}
