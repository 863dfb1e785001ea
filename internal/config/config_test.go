package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_JSON5File(t *testing.T) {
	path := writeConfig(t, `{
		// comments are allowed
		triage: {
			intake_channel: "C_INTAKE",
			leads_channel: "C_LEADS",
			call_timeout_sec: 30,
		},
		teams: {
			seeds: {
				"Support": "C_SUP",
				"IAM Team": "C_IAM",
			},
		},
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Triage.IntakeChannel != "C_INTAKE" {
		t.Errorf("IntakeChannel = %q", cfg.Triage.IntakeChannel)
	}
	if cfg.Triage.CallTimeout() != 30*time.Second {
		t.Errorf("CallTimeout = %v, want 30s", cfg.Triage.CallTimeout())
	}
	if cfg.Teams.Seeds["IAM Team"] != "C_IAM" {
		t.Errorf("Seeds = %v", cfg.Teams.Seeds)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Triage.CallTimeout() != 15*time.Second {
		t.Errorf("default CallTimeout = %v, want 15s", cfg.Triage.CallTimeout())
	}
	if cfg.Telemetry.ServiceName != "casetriage" {
		t.Errorf("default ServiceName = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, `{not valid json5 at all::}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{triage: {intake_channel: "C_FILE"}}`)

	t.Setenv("CASETRIAGE_INTAKE_CHANNEL", "C_ENV")
	t.Setenv("CASETRIAGE_SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("CASETRIAGE_SLACK_APP_TOKEN", "xapp-test")
	t.Setenv("CASETRIAGE_CALL_TIMEOUT_SEC", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Triage.IntakeChannel != "C_ENV" {
		t.Errorf("IntakeChannel = %q, env must win over file", cfg.Triage.IntakeChannel)
	}
	if cfg.Slack.BotToken != "xoxb-test" || cfg.Slack.AppToken != "xapp-test" {
		t.Errorf("tokens not taken from env: %+v", cfg.Slack)
	}
	if cfg.Triage.CallTimeout() != 7*time.Second {
		t.Errorf("CallTimeout = %v, want 7s", cfg.Triage.CallTimeout())
	}
}

func TestLoad_TeamSeedEnvVars(t *testing.T) {
	t.Setenv("SUPPORT_CHANNEL_ID", "C_SUP")
	t.Setenv("IAM_CHANNEL_ID", "C_IAM")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Teams.Seeds["Support"] != "C_SUP" {
		t.Errorf("Support seed = %q", cfg.Teams.Seeds["Support"])
	}
	if cfg.Teams.Seeds["IAM"] != "C_IAM" {
		t.Errorf("IAM seed = %q", cfg.Teams.Seeds["IAM"])
	}
}

func TestSecretsNeverReadFromFile(t *testing.T) {
	path := writeConfig(t, `{
		slack: {bot_token: "xoxb-from-file", app_token: "xapp-from-file"},
		agentforce: {consumer_key: "key-from-file"},
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.BotToken != "" || cfg.Slack.AppToken != "" {
		t.Errorf("slack tokens read from file: %+v", cfg.Slack)
	}
	if cfg.Agentforce.ConsumerKey != "" {
		t.Errorf("agentforce secret read from file: %q", cfg.Agentforce.ConsumerKey)
	}
}

func TestAgentforceConfigured(t *testing.T) {
	full := AgentforceConfig{
		DomainURL:      "https://org.my.salesforce.com",
		AgentID:        "0Xx000000000001",
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
	}
	if !full.Configured() {
		t.Error("full credentials reported unconfigured")
	}

	partials := []AgentforceConfig{
		{},
		{DomainURL: full.DomainURL, AgentID: full.AgentID, ConsumerKey: full.ConsumerKey},
		{DomainURL: full.DomainURL, ConsumerKey: full.ConsumerKey, ConsumerSecret: full.ConsumerSecret},
	}
	for i, p := range partials {
		if p.Configured() {
			t.Errorf("partial credentials %d reported configured", i)
		}
	}
}
