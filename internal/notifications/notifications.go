package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thatsimonsguy/light-controller/internal/env"
)

// BaseURL is the ntfy server; tests point it at a local server.
var BaseURL = "https://ntfy.sh"

var client *http.Client
var topic string
var initialized bool

// Init initializes the notification client
func Init() {
	if env.Cfg.Ntfy.Topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	topic = env.Cfg.Ntfy.Topic
	initialized = true

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

// Send sends a notification to ntfy.sh. Cancelling ctx aborts the request.
func Send(ctx context.Context, title, message string) error {
	if !initialized {
		return fmt.Errorf("notifications not initialized")
	}

	url := fmt.Sprintf("%s/%s", BaseURL, topic)

	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// LightBroken reports a light that has just been observed BROKEN.
func LightBroken(ctx context.Context, roomID, lightID string) error {
	return Send(ctx,
		"Light broken",
		fmt.Sprintf("Light %s in room %s reports BROKEN and will be skipped until repaired", lightID, roomID),
	)
}

// LightRepaired reports a previously broken light that is working again.
func LightRepaired(ctx context.Context, roomID, lightID string) error {
	return Send(ctx,
		"Light repaired",
		fmt.Sprintf("Light %s in room %s is working again", lightID, roomID),
	)
}
