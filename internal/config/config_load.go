package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Triage: TriageConfig{
			CallTimeoutSec: 15,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "casetriage",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; env-only deployments are supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Slack secrets: env only, per-field json:"-" keeps them out of the file.
	envStr("CASETRIAGE_SLACK_BOT_TOKEN", &c.Slack.BotToken)
	envStr("CASETRIAGE_SLACK_APP_TOKEN", &c.Slack.AppToken)

	// Channels
	envStr("CASETRIAGE_INTAKE_CHANNEL", &c.Triage.IntakeChannel)
	envStr("CASETRIAGE_LEADS_CHANNEL", &c.Triage.LeadsChannel)
	if v := os.Getenv("CASETRIAGE_CALL_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Triage.CallTimeoutSec = sec
		}
	}

	// Well-known team channel IDs (same env names the original deployment used).
	seed := func(key, team string) {
		if v := os.Getenv(key); v != "" {
			if c.Teams.Seeds == nil {
				c.Teams.Seeds = map[string]string{}
			}
			c.Teams.Seeds[team] = v
		}
	}
	seed("SUPPORT_CHANNEL_ID", "Support")
	seed("SALES_CHANNEL_ID", "Sales")
	seed("ENGINEERING_CHANNEL_ID", "Engineering")
	seed("IAM_CHANNEL_ID", "IAM")

	// AgentForce (Salesforce) credentials
	envStr("SALESFORCE_DOMAIN_URL", &c.Agentforce.DomainURL)
	envStr("SALESFORCE_AGENT_ID", &c.Agentforce.AgentID)
	envStr("SALESFORCE_CONSUMER_KEY", &c.Agentforce.ConsumerKey)
	envStr("SALESFORCE_CONSUMER_SECRET", &c.Agentforce.ConsumerSecret)

	// Telemetry
	envStr("CASETRIAGE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CASETRIAGE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CASETRIAGE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CASETRIAGE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}
