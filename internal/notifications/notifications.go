package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier pushes operator alerts (device offline, persist failures) to an
// ntfy.sh topic. A Notifier with an empty topic is valid and sends nothing.
type Notifier struct {
	client *http.Client
	topic  string
}

func New(topic string) *Notifier {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return &Notifier{}
	}

	log.Info().Str("topic", topic).Msg("Ntfy notifications initialized")
	return &Notifier{
		client: &http.Client{Timeout: 10 * time.Second},
		topic:  topic,
	}
}

// Send posts a notification. Disabled notifiers return nil.
func (n *Notifier) Send(title, message string) error {
	if n.topic == "" {
		return nil
	}

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	url := fmt.Sprintf("https://ntfy.sh/%s", n.topic)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
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
		Msg("Notification sent")

	return nil
}
