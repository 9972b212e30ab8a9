package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/notify"
)

// Sends a test notification through the Lark sink using the service configuration.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	userID := flag.String("user", "", "Recipient ID, interpreted per lark.receive_id_type")
	message := flag.String("message", "Test notification from the expense approval service", "Message body")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: test-notification --user <id> [--config configs/config.yaml] [--message text]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Lark.AppID == "" || cfg.Lark.AppSecret == "" {
		fmt.Fprintln(os.Stderr, "lark.app_id and lark.app_secret must be set (LARK_APP_ID / LARK_APP_SECRET)")
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	larkCfg := infraLark.Config{
		AppID:         cfg.Lark.AppID,
		AppSecret:     cfg.Lark.AppSecret,
		ReceiveIDType: cfg.Lark.ReceiveIDType,
		BaseURL:       cfg.Lark.BaseURL,
	}
	sink := notify.NewLarkSink(infraLark.NewMessenger(infraLark.NewSDKClient(larkCfg, logger), larkCfg.ReceiveIDType, logger))

	n := &entity.Notification{
		ID:        "test",
		UserID:    *userID,
		Type:      entity.NotificationApprovalRequired,
		Title:     "Test",
		Message:   *message,
		CreatedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sink.Publish(ctx, n); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sent %q to %s (%s)\n", notify.FormatText(n), *userID, larkCfg.ReceiveIDType)
}
