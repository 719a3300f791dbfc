package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"calqbridge/internal/logger"
	"calqbridge/internal/services/bridge"
	"calqbridge/internal/services/calq"
)

// Example driving every Calq operation against a running calq-bridge.
func main() {
	writeKey := os.Getenv("CALQ_WRITE_KEY")
	if writeKey == "" {
		log.Fatal("CALQ_WRITE_KEY is required")
	}

	config := bridge.LoadConfig()
	client := bridge.NewClient(config.URL, config.Timeout, logger.New("calq-example-bridge"))
	analytics := calq.NewWithBridge(client, calq.WithLogger(logger.New("calq-example")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("=== Init ===")
	if _, err := analytics.Init(ctx, writeKey).Wait(ctx); err != nil {
		log.Fatalf("Failed to initialise: %v", err)
	}
	fmt.Printf("✓ Initialised against %s\n", config.URL)

	fmt.Println("\n=== Anonymous session ===")
	report("set global plan", func() (*calq.Call, error) {
		return analytics.SetGlobalProperty(ctx, "plan", "pro")
	})
	report("track signup_started", func() (*calq.Call, error) {
		return analytics.Track(ctx, "signup_started", map[string]any{"source": "landing"})
	})

	fmt.Println("\n=== Identified session ===")
	report("identify user", func() (*calq.Call, error) {
		return analytics.Identify(ctx, "user_12345")
	})
	report("profile", func() (*calq.Call, error) {
		return analytics.Profile(ctx, map[string]any{"$email": "john.doe@example.com", "age": 30})
	})
	report("track sale", func() (*calq.Call, error) {
		return analytics.TrackSale(ctx, "upgrade", map[string]any{"tier": "pro"}, "USD", 49.99)
	})
	report("track refund", func() (*calq.Call, error) {
		return analytics.TrackSale(ctx, "refund", nil, "USD", -5)
	})

	fmt.Println("\n=== Rejected arguments ===")
	report("track without action", func() (*calq.Call, error) {
		return analytics.Track(ctx, "", nil)
	})
	report("sale with bad currency", func() (*calq.Call, error) {
		return analytics.TrackSale(ctx, "upgrade", nil, "DOLLARS", 10)
	})

	fmt.Println("\n=== Logout ===")
	report("flush", func() (*calq.Call, error) {
		return analytics.FlushQueue(ctx)
	})
	report("clear", func() (*calq.Call, error) {
		return analytics.Clear(ctx)
	})

	if err := analytics.Drain(ctx); err != nil {
		log.Printf("Failed to drain pending calls: %v", err)
	}

	fmt.Println("\n=== Calq Example Complete ===")
}

func report(name string, start func() (*calq.Call, error)) {
	call, err := start()
	if err != nil {
		log.Printf("✗ %s: %v", name, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := call.Wait(ctx)
	if err != nil {
		log.Printf("✗ %s: %v", name, err)
		return
	}

	fmt.Printf("✓ %s (%s)\n", name, summarize(payload))
}

// summarize renders a session snapshot, or the raw payload when it is not one.
func summarize(payload []byte) string {
	var snapshot map[string]interface{}
	if err := json.Unmarshal(payload, &snapshot); err != nil || snapshot == nil {
		return fmt.Sprintf("payload=%q", payload)
	}
	return fmt.Sprintf("actor=%v identified=%v", snapshot["actor"], snapshot["identified"])
}
