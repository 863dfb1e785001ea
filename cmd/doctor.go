package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/casetriage/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("casetriage doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Slack credentials
	fmt.Println()
	fmt.Println("  Slack:")
	checkToken("Bot token", cfg.Slack.BotToken, "xoxb-")
	checkToken("App token", cfg.Slack.AppToken, "xapp-")

	// Triage channels
	fmt.Println()
	fmt.Println("  Channels:")
	checkChannelID("Intake", cfg.Triage.IntakeChannel)
	checkChannelID("Leads", cfg.Triage.LeadsChannel)

	// Team seeds
	fmt.Println()
	fmt.Println("  Teams:")
	if len(cfg.Teams.Seeds) == 0 {
		fmt.Println("    (none seeded, channels will be created on demand)")
	}
	for name, id := range cfg.Teams.Seeds {
		fmt.Printf("    %-16s %s\n", name+":", id)
	}

	// AgentForce
	fmt.Println()
	fmt.Println("  AgentForce:")
	if cfg.Agentforce.Configured() {
		fmt.Printf("    %-16s %s\n", "Domain:", cfg.Agentforce.DomainURL)
		fmt.Printf("    %-16s %s\n", "Agent ID:", cfg.Agentforce.AgentID)
		checkToken("Consumer key", cfg.Agentforce.ConsumerKey, "")
	} else {
		fmt.Println("    (not configured, agent processing disabled)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkToken(name, token, prefix string) {
	if token == "" {
		fmt.Printf("    %-16s (not configured)\n", name+":")
		return
	}
	masked := token
	if len(token) > 8 {
		masked = token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
	}
	if prefix != "" && !strings.HasPrefix(token, prefix) {
		fmt.Printf("    %-16s %s (WARNING: expected %s prefix)\n", name+":", masked, prefix)
		return
	}
	fmt.Printf("    %-16s %s\n", name+":", masked)
}

func checkChannelID(name, id string) {
	if id == "" {
		fmt.Printf("    %-16s (not configured)\n", name+":")
	} else {
		fmt.Printf("    %-16s %s\n", name+":", id)
	}
}
