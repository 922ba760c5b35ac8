package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Notifier delivers a user-facing message. Delivery is best effort: a failed
// notification never rolls back the money movement that triggered it.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, message string)
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a minor-unit amount with thousands separators.
func FormatAmount(amount int64) string {
	return amountPrinter.Sprintf("%d coins", amount)
}

// HTTPNotifier posts notifications to the notification service.
type HTTPNotifier struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPNotifier(baseURL, token string) *HTTPNotifier {
	return &HTTPNotifier{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *HTTPNotifier) NotifyUser(ctx context.Context, userID, msg string) {
	// the request outlives the handler that triggered it
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := n.send(ctx, userID, msg); err != nil {
			log.Printf("[NOTIFY] ⚠️ failed to notify %s: %v", userID, err)
		}
	}()
}

func (n *HTTPNotifier) send(ctx context.Context, userID, msg string) error {
	url := fmt.Sprintf("%s/notifications/users/%s", n.BaseURL, userID)

	jsonData, err := json.Marshal(map[string]interface{}{
		"user_id": userID,
		"message": msg,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", n.Token)

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notification service returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// LogNotifier writes notifications to the process log. Used when no
// notification service is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyUser(_ context.Context, userID, msg string) {
	log.Printf("[NOTIFY] %s: %s", userID, msg)
}
