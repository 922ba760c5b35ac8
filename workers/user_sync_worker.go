// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"game-wager-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile is one user as returned by the profile sync service.
type RemoteProfile struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// UserSyncWorker mirrors usernames and emails from the profile service into
// the users table. Wallet balances are never touched: new users start at zero
// and only the ledger moves money.
type UserSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewUserSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration) *UserSyncWorker {
	return &UserSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting User Sync Worker (profile service → users)…")
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		log.Printf("[SYNC] ⚠️ Initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx, w.lastSyncTime()); err != nil {
				log.Printf("[SYNC] ❌ Sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ User Sync Worker stopped")
			return
		}
	}
}

func (w *UserSyncWorker) lastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Model(&models.User{}).Where("is_house = ?", false).
		Select("MAX(updated_at)").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// SyncOnce fetches profiles changed since the given time and upserts them.
// It returns the number of users written.
func (w *UserSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid profile service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("profile service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var response profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	if len(response.Users) == 0 {
		return 0, nil
	}

	upserted := 0
	for _, remote := range response.Users {
		if remote.ExternalID == "" {
			continue
		}
		user := models.User{
			ID:       remote.ExternalID,
			Username: remote.Username,
			Email:    remote.Email,
		}
		err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "email", "updated_at"}),
		}).Create(&user).Error
		if err != nil {
			log.Printf("[SYNC] ⚠️ Failed to upsert user %s (%s): %v", remote.ExternalID, remote.Username, err)
			continue
		}
		upserted++
	}
	log.Printf("[SYNC] ✅ Synced %d user(s), %d upserted", len(response.Users), upserted)
	return upserted, nil
}
