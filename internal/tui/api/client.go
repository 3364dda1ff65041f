// Package api provides an HTTP client for the ransomwatchd status API.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client handles API communication with a running ransomwatchd instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// HealthResponse mirrors statusapi.Handler.HealthCheck's payload.
type HealthResponse struct {
	Status        string `json:"status"`
	Triggered     bool   `json:"triggered"`
	Level         string `json:"level"`
	ThreatCount   int    `json:"threat_count"`
	UptimeSeconds int    `json:"uptime_seconds"`
}

// Threat mirrors killswitch.ThreatInfo's JSON shape.
type Threat struct {
	ID            string    `json:"ID"`
	Level         int       `json:"Level"`
	DetectorName  string    `json:"DetectorName"`
	Description   string    `json:"Description"`
	AffectedFiles []string  `json:"AffectedFiles"`
	Timestamp     time.Time `json:"Timestamp"`
}

// ThreatsResponse mirrors statusapi.Handler.Threats's payload.
type ThreatsResponse struct {
	Threats    []Threat `json:"threats"`
	TotalCount int      `json:"total_count"`
}

// Stats is the dashboard/system scenes' combined view of daemon state.
type Stats struct {
	Healthy       bool
	HealthStatus  string
	Triggered     bool
	Level         string
	ThreatCount   int
	Uptime        string
	UptimeSeconds int
	StatusReason  string
}

// GetHealth fetches health status.
func (c *Client) GetHealth() (*HealthResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &health, nil
}

// GetThreats fetches the manager's in-memory threat history.
func (c *Client) GetThreats() (*ThreatsResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/threats")
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var threats ThreatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&threats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &threats, nil
}

// GetStats fetches combined stats for the dashboard.
func (c *Client) GetStats() (*Stats, error) {
	health, err := c.GetHealth()
	stats := &Stats{
		Healthy:      false,
		HealthStatus: "unknown",
		StatusReason: "Unable to connect to ransomwatchd",
	}
	if err != nil {
		stats.StatusReason = err.Error()
		return stats, nil
	}

	stats.Healthy = health.Status == "healthy"
	stats.HealthStatus = health.Status
	stats.Triggered = health.Triggered
	stats.Level = health.Level
	stats.ThreatCount = health.ThreatCount
	stats.UptimeSeconds = health.UptimeSeconds
	stats.Uptime = formatUptime(float64(health.UptimeSeconds))

	if health.Status == "triggered" {
		stats.StatusReason = "Kill switch triggered"
	} else {
		stats.StatusReason = "All systems operational"
	}

	return stats, nil
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
