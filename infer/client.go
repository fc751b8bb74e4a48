package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/sensemesh/sensemesh/wire"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxInflight = 8

	// responses are tiny JSON objects; anything bigger is a bad response.
	respBodyLimit = 1 << 20
)

// Conf configures the HTTP client.
type Conf struct {
	BaseURL     string
	Timeout     time.Duration
	MaxInflight int
}

// httpClient implements Client over the inference service's HTTP endpoints.
// A semaphore caps in-flight requests so a burst of session events cannot
// overwhelm the service.
type httpClient struct {
	baseURL string
	hc      *http.Client
	sem     chan struct{}
}

// NewClient creates a Client for the service at conf.BaseURL.
func NewClient(conf Conf) Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	inflight := conf.MaxInflight
	if inflight <= 0 {
		inflight = DefaultMaxInflight
	}
	return &httpClient{
		baseURL: conf.BaseURL,
		hc:      &http.Client{Timeout: timeout},
		sem:     make(chan struct{}, inflight),
	}
}

func (c *httpClient) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, "transcribe", payload{DataBase64: audioBase64}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *httpClient) AnalyzeEmotion(ctx context.Context, text string) (string, error) {
	var out struct {
		Emotion string `json:"emotion"`
	}
	if err := c.post(ctx, "analyze_text", payload{Text: text}, &out); err != nil {
		return "", err
	}
	if out.Emotion == "" {
		return "", &Error{Kind: KindRejected, Endpoint: "analyze_text", Err: fmt.Errorf("empty emotion label")}
	}
	return out.Emotion, nil
}

func (c *httpClient) Describe(ctx context.Context, imageBase64 string) (string, error) {
	var out struct {
		Description string `json:"description"`
	}
	if err := c.post(ctx, "describe", payload{DataBase64: imageBase64}, &out); err != nil {
		return "", err
	}
	return out.Description, nil
}

func (c *httpClient) PredictSign(ctx context.Context, landmarks []float64) (string, error) {
	var out struct {
		Gesture string `json:"gesture"`
	}
	req := struct {
		Landmarks []float64 `json:"landmarks"`
	}{Landmarks: landmarks}
	if err := c.post(ctx, "predict_sign", req, &out); err != nil {
		return "", err
	}
	return out.Gesture, nil
}

func (c *httpClient) DetectHazard(ctx context.Context, audioBase64 string) (HazardResult, error) {
	var out struct {
		Event   string `json:"event"`
		Urgency string `json:"urgency"`
	}
	if err := c.post(ctx, "detect_hazard", payload{DataBase64: audioBase64}, &out); err != nil {
		return HazardResult{}, err
	}
	switch wire.Urgency(out.Urgency) {
	case wire.UrgencyLow, wire.UrgencyCritical:
	default:
		return HazardResult{}, &Error{
			Kind:     KindRejected,
			Endpoint: "detect_hazard",
			Err:      fmt.Errorf("unexpected urgency %q", out.Urgency),
		}
	}
	return HazardResult{Event: out.Event, Urgency: wire.Urgency(out.Urgency)}, nil
}

// payload matches the service's common request body.
type payload struct {
	DataBase64 string `json:"data_base64,omitempty"`
	Text       string `json:"text,omitempty"`
}

func (c *httpClient) post(ctx context.Context, endpoint string, in, out interface{}) error {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return &Error{Kind: KindUnavailable, Endpoint: endpoint, Err: ctx.Err()}
	}

	start := time.Now()
	err := c.doPost(ctx, endpoint, in, out)
	observe(endpoint, start, err)

	if err != nil {
		glog.V(5).Infof("infer: %s failed: %v", endpoint, err)
	}
	return err
}

func (c *httpClient) doPost(ctx context.Context, endpoint string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		// a marshal failure is a caller bug, but still must not escape raw.
		return &Error{Kind: KindRejected, Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindUnavailable, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return &Error{Kind: KindUnavailable, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, respBodyLimit))
		kind := KindRejected
		if resp.StatusCode >= http.StatusInternalServerError {
			kind = KindUnavailable
		}
		return &Error{Kind: kind, Endpoint: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, respBodyLimit)).Decode(out); err != nil {
		return &Error{Kind: KindRejected, Endpoint: endpoint, Err: err}
	}
	return nil
}
