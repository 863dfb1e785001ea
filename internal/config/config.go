// Package config loads the triage bot configuration from a JSON5 file with
// environment variable overlays. Secrets (Slack tokens, Salesforce
// credentials) are never read from or written to the config file, env only.
package config

import "time"

// Config is the root configuration for the triage bot.
type Config struct {
	Slack      SlackConfig      `json:"slack"`
	Triage     TriageConfig     `json:"triage"`
	Teams      TeamsConfig      `json:"teams"`
	Agentforce AgentforceConfig `json:"agentforce,omitempty"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
}

// SlackConfig holds the Slack connection settings.
// Tokens come from env only (CASETRIAGE_SLACK_BOT_TOKEN / CASETRIAGE_SLACK_APP_TOKEN).
type SlackConfig struct {
	BotToken string `json:"-"` // xoxb-...
	AppToken string `json:"-"` // xapp-... (Socket Mode)
	Debug    bool   `json:"debug,omitempty"`
}

// TriageConfig identifies the intake surfaces and per-call limits.
type TriageConfig struct {
	IntakeChannel  string `json:"intake_channel"`            // central case channel ID
	LeadsChannel   string `json:"leads_channel,omitempty"`   // new-leads channel ID (ack only)
	CallTimeoutSec int    `json:"call_timeout_sec,omitempty"` // timeout per external call (default 15)
}

// CallTimeout returns the per-external-call timeout.
func (t TriageConfig) CallTimeout() time.Duration {
	if t.CallTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(t.CallTimeoutSec) * time.Second
}

// TeamsConfig seeds the team directory at startup.
// Keys are team display names, values are destination channel IDs.
type TeamsConfig struct {
	Seeds map[string]string `json:"seeds,omitempty"`
}

// AgentforceConfig configures the Salesforce AgentForce gateway.
// ConsumerKey/Secret come from env only (SALESFORCE_CONSUMER_KEY/SECRET).
type AgentforceConfig struct {
	DomainURL      string `json:"domain_url,omitempty"` // my-org.my.salesforce.com
	AgentID        string `json:"agent_id,omitempty"`
	ConsumerKey    string `json:"-"`
	ConsumerSecret string `json:"-"`
}

// Configured reports whether the AgentForce integration has full credentials.
func (a AgentforceConfig) Configured() bool {
	return a.DomainURL != "" && a.ConsumerKey != "" && a.ConsumerSecret != "" && a.AgentID != ""
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"` // host:port of the OTLP HTTP collector
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}
