package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ransomwatch/internal/errors"
	"ransomwatch/internal/killswitch"
)

// NotifyAction posts a threat summary to a generic JSON webhook. It is
// grounded on the same request-shape as a Slack incoming webhook, so the
// same URL works for both.
type NotifyAction struct {
	webhookURL string
	headers    map[string]string
	client     *http.Client
}

// NewNotifyAction constructs an action that POSTs to url with the given
// extra headers (e.g. an auth token).
func NewNotifyAction(url string, headers map[string]string) *NotifyAction {
	return &NotifyAction{
		webhookURL: url,
		headers:    headers,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *NotifyAction) Name() string { return "notify" }

func (n *NotifyAction) severityColor(level killswitch.ThreatLevel) string {
	switch level {
	case killswitch.LevelCritical:
		return "#FF0000"
	case killswitch.LevelHigh:
		return "#FFA500"
	case killswitch.LevelMedium:
		return "#FFFF00"
	case killswitch.LevelLow:
		return "#00FF00"
	default:
		return "#808080"
	}
}

func (n *NotifyAction) Execute(ctx context.Context, threat killswitch.ThreatInfo) error {
	// The description names the files an attacker touched; in production
	// it gets scrubbed before leaving the host for the webhook service.
	description := threat.Description
	if errors.IsProduction() {
		description = errors.Scrub(description)
	}

	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color": n.severityColor(threat.Level),
				"title": fmt.Sprintf("[%s] Kill switch threat detected", strings.ToUpper(threat.Level.String())),
				"text":  description,
				"fields": []map[string]interface{}{
					{"title": "Detector", "value": threat.DetectorName, "short": true},
					{"title": "Level", "value": threat.Level.String(), "short": true},
					{"title": "Affected files", "value": fmt.Sprintf("%d", len(threat.AffectedFiles)), "short": true},
				},
				"footer": fmt.Sprintf("Threat ID: %s", threat.ID),
				"ts":     threat.Timestamp.Unix(),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify: webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
