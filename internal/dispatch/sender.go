package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hookbeat/hookbeat/internal/models"
	"github.com/hookbeat/hookbeat/internal/signing"
)

const DefaultTimeout = 10 * time.Second

// Sender performs a single outbound call with a hard deadline. The same
// sender serves scheduled sends, interactive test sends, and health probes.
type Sender struct {
	client  *http.Client
	timeout time.Duration
}

func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Send posts payload to the endpoint's URL and classifies the result.
// It never returns an error; every failure mode is an Outcome.
func (s *Sender) Send(ctx context.Context, ep *models.Endpoint, payload []byte) Outcome {
	start := time.Now()

	body := mergeIdentity(payload, ep)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Outcome{
			Transport: fmt.Sprintf("failed to create request: %v", err),
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Hookbeat/1.0")
	if ep.Secret != "" {
		signature, timestamp := signing.Sign(ep.Secret, body)
		req.Header.Set("X-Hookbeat-Timestamp", fmt.Sprintf("%d", timestamp))
		req.Header.Set("X-Hookbeat-Signature", signature)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		latency := time.Since(start).Milliseconds()
		if isTimeout(err) {
			return Outcome{TimedOut: true, LatencyMs: latency}
		}
		return Outcome{
			Transport: fmt.Sprintf("request failed: %v", err),
			LatencyMs: latency,
		}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return Outcome{
		Success:    IsSuccess(resp.StatusCode),
		StatusCode: resp.StatusCode,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// mergeIdentity injects the endpoint's sender identity into the JSON
// payload. Payloads that are not JSON objects, or that already carry the
// fields, pass through untouched.
func mergeIdentity(payload []byte, ep *models.Endpoint) []byte {
	if ep.Username == "" && ep.AvatarURL == "" {
		return payload
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return payload
	}
	if ep.Username != "" {
		if _, ok := obj["username"]; !ok {
			obj["username"] = ep.Username
		}
	}
	if ep.AvatarURL != "" {
		if _, ok := obj["avatar_url"]; !ok {
			obj["avatar_url"] = ep.AvatarURL
		}
	}

	merged, err := json.Marshal(obj)
	if err != nil {
		return payload
	}
	return merged
}
