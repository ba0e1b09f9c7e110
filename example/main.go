package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/prilive-com/orderflow/orderflow"
)

// This example runs the full stack: webhook server, form engine and the
// outbound notifiers, configured from a .env file / environment variables
// and an optional config.yaml.
//
// Required: ORDERFLOW_VERIFY_TOKEN, ORDERFLOW_PAGE_ACCESS_TOKEN
// Optional: ORDERFLOW_RESPONDER_API_KEY, ORDERFLOW_SMTP_HOST, ...
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using platform environment variables")
	}

	client, err := orderflow.NewFromConfig("config.yaml",
		orderflow.WithOrderFile("orders.jsonl"),
		orderflow.DevelopmentPreset(),
	)
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	slog.Info("orderflow running, press Ctrl+C to stop",
		"port", client.Config().WebhookPort)

	if err := client.Serve(ctx); err != nil {
		log.Fatalf("serve failed: %v", err)
	}
}
