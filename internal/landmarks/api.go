package landmarks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
)

var (
	ErrMissingBaseURL   = &apiError{"missing sidecar api url"}
	ErrMissingParameter = &apiError{"missing parameter"}
)

type apiError struct {
	msg string
}

func (e *apiError) Error() string {
	return e.msg
}

// API is the optional HTTP control surface of the model sidecar.
type API struct {
	baseURL string
	client  *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// SetConfig issues PUT {api}/config/<key> with body {"value": value}.
func (a *API) SetConfig(ctx context.Context, key string, value any) error {
	if a.baseURL == "" {
		return ErrMissingBaseURL
	}
	key = strings.Trim(key, "/")
	if key == "" {
		return ErrMissingParameter
	}
	payload, err := json.Marshal(map[string]any{"value": value})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+"/config/"+key, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("set %s: http %d: %s", key, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Configure pushes the detection confidences to the sidecar.
func (a *API) Configure(ctx context.Context, t config.DetectionTuning) error {
	if err := a.SetConfig(ctx, "min_detection_confidence", t.MinDetectionConfidence); err != nil {
		return err
	}
	return a.SetConfig(ctx, "min_tracking_confidence", t.MinTrackingConfidence)
}

// Status returns the sidecar's reported state in lower case, "ok" when it
// answers without one, or "error"/"http_<code>" when it does not answer.
func (a *API) Status(ctx context.Context) string {
	if a.baseURL == "" {
		return "disabled"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/status", nil)
	if err != nil {
		return "error"
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "error"
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("http_%d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "error"
	}
	if len(body) == 0 {
		return "ok"
	}
	state, ok := extractState(body)
	if !ok {
		return "ok"
	}
	return state
}

// Poll reports Status immediately and then every interval until ctx ends.
func (a *API) Poll(ctx context.Context, interval time.Duration, update func(string)) {
	if a.baseURL == "" || update == nil {
		return
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		update(a.Status(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func extractState(payload []byte) (string, bool) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", false
	}
	state := findState(decoded)
	if state == "" {
		return "", false
	}
	return strings.ToLower(state), true
}

func findState(value any) string {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range []string{"state", "status", "value"} {
			entry, ok := v[key]
			if !ok {
				continue
			}
			if s, ok := entry.(string); ok {
				return s
			}
			if nested := findState(entry); nested != "" {
				return nested
			}
		}
	case []any:
		for _, entry := range v {
			if nested := findState(entry); nested != "" {
				return nested
			}
		}
	}
	return ""
}
