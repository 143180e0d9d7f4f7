package tuned

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/utils"
)

// CallbackSecretHeader carries the shared secret on completion callbacks.
const CallbackSecretHeader = "X-Autotune-Callback-Secret"

var (
	ErrInvalidURL       = errors.New("invalid callback URL")
	ErrMetadataEndpoint = errors.New("callback URL targets a cloud metadata endpoint")
	ErrInternalHost     = errors.New("callback URL targets an internal address")
)

// NotificationPayload represents the JSON payload sent to the callback URL
type NotificationPayload struct {
	RunID             string            `json:"run_id"`
	Mode              Mode              `json:"mode"`
	Status            RunStatus         `json:"status"`
	CreatedAtUnixMs   int64             `json:"created_at_unix_ms"`
	StartedAtUnixMs   int64             `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs     int64             `json:"ended_at_unix_ms,omitempty"`
	Error             string            `json:"error,omitempty"`
	Evaluations       int               `json:"evaluations"`
	Found             bool              `json:"found"`
	BaselineLatencyMs *float64          `json:"baseline_latency_ms,omitempty"`
	BestLatencyMs     *float64          `json:"best_latency_ms,omitempty"`
	Recommended       map[string]string `json:"recommended,omitempty"`
	Timestamp         int64             `json:"timestamp"` // When notification was sent
}

// Notifier posts run completion callbacks
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
	wg         sync.WaitGroup
}

// NewNotifier creates a new notification service
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(1*time.Second, 30*time.Second, 2),
	}
}

// Notify sends a notification to the callback URL asynchronously
func (n *Notifier) Notify(callbackURL string, callbackSecret string, rec *RunRecord) {
	if callbackURL == "" {
		return
	}
	if rec == nil {
		logger.Warn("cannot notify: invalid run record", "callback_url", callbackURL)
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", rec.Run.ID)
	if err := validateCallbackURL(finalURL); err != nil {
		logger.Warn("refusing callback", "run_id", rec.Run.ID, "callback_url", finalURL, "error", err)
		return
	}

	payload := buildPayload(rec)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sendNotification(finalURL, callbackSecret, payload)
	}()
}

// Wait blocks until every pending notification finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func buildPayload(rec *RunRecord) NotificationPayload {
	payload := NotificationPayload{
		RunID:           rec.Run.ID,
		Mode:            rec.Run.Mode,
		Status:          rec.Run.Status,
		CreatedAtUnixMs: rec.Run.CreatedAtUnixMs,
		StartedAtUnixMs: rec.Run.StartedAtUnixMs,
		EndedAtUnixMs:   rec.Run.EndedAtUnixMs,
		Error:           rec.Run.Error,
		Timestamp:       time.Now().UTC().UnixMilli(),
	}

	switch {
	case rec.Report != nil:
		payload.Evaluations = len(rec.Report.Evaluations())
		payload.Found = rec.Report.Found
		payload.Recommended = rec.Report.Snapshot
		if g := rec.Report.Global; g != nil {
			payload.BaselineLatencyMs = latencyPtr(g.Baseline.Stats.Successful(), g.Baseline.Stats.AverageLatency)
			payload.BestLatencyMs = latencyPtr(g.Best.Stats.Successful(), g.Best.Stats.AverageLatency)
		}
	case rec.Grid != nil:
		payload.Evaluations = len(rec.Grid.Entries)
		if best, ok := rec.Grid.Best(); ok {
			payload.Found = true
			payload.BestLatencyMs = latencyPtr(true, best.Evaluation.Stats.AverageLatency)
		}
	}
	return payload
}

func latencyPtr(ok bool, v float64) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// sendNotification performs the actual HTTP POST with retry logic
func (n *Notifier) sendNotification(callbackURL string, callbackSecret string, payload NotificationPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "profile-autotune/1.0")
		if callbackSecret != "" {
			req.Header.Set(CallbackSecretHeader, callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent successfully",
				"run_id", payload.RunID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"status", payload.Status,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}

// validateCallbackURL rejects callback targets that are not plain http(s)
// endpoints or that point at metadata services or literal internal IPs.
// The "localhost" host name stays allowed for local development.
func validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	lower := strings.ToLower(host)
	if lower == "metadata.google.internal" || lower == "metadata" {
		return ErrMetadataEndpoint
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return ErrMetadataEndpoint
	}
	if ip.IsUnspecified() || isPrivateIP(ip) {
		return ErrInternalHost
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
