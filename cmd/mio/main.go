package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/mio/internal/config"
	"github.com/stellarlinkco/mio/internal/gateway"
	"github.com/stellarlinkco/mio/internal/memory"
)

var rootCmd = &cobra.Command{
	Use:   "mio",
	Short: "mio - a proactive AI companion that remembers you",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the companion (channels + memory + proactive engagement)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mio status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'mio onboard' or set MIO_API_KEY / OPENAI_API_KEY")
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token == "" {
		return fmt.Errorf("telegram channel not configured. Run 'mio onboard' or set MIO_TELEGRAM_TOKEN")
	}

	g, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	return g.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	path := config.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Channels.Telegram.Enabled = true
	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config written to %s\n", path)
	fmt.Println("Next steps:")
	fmt.Println("  1. Put your model API key in provider.apiKey (or export MIO_API_KEY)")
	fmt.Println("  2. Put your provider base URL in provider.baseUrl (or export MIO_BASE_URL)")
	fmt.Println("  3. Put your bot token in channels.telegram.token (or export MIO_TELEGRAM_TOKEN)")
	fmt.Println("  4. Run 'mio serve'")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Config:   %s\n", config.ConfigPath())
	fmt.Printf("Model:    %s\n", cfg.Agent.Model)
	fmt.Printf("API key:  %s\n", mask(cfg.Provider.APIKey))
	fmt.Printf("Telegram: enabled=%v token=%s\n", cfg.Channels.Telegram.Enabled, mask(cfg.Channels.Telegram.Token))
	fmt.Printf("Engage:   enabled=%v sweep=%s idle=%s min-interval=%s\n",
		cfg.Engage.Enabled, cfg.Engage.Sweep, cfg.Engage.IdleGap, cfg.Engage.MinInterval)

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.DataDir(), "memory.db")
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Printf("Memory:   %s (not created yet)\n", dbPath)
		return nil
	}

	store, err := memory.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	userIDs, err := store.UserIDs()
	if err != nil {
		return err
	}
	fmt.Printf("Memory:   %s (%d users)\n", dbPath, len(userIDs))
	for _, userID := range userIDs {
		count, _ := store.MessageCount(userID)
		facts, _ := store.Facts(userID)
		fmt.Printf("  %s: %d messages, %d facts\n", userID, count, len(facts))
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
