// services/users.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"game-wager-system/models"

	"gorm.io/gorm"
)

// WalletService is the read side of the ledger.
type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// Wallet is a user's balance as shown to that user.
type Wallet struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Display  string `json:"display"`
}

func (s *WalletService) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, err
	}
	return &Wallet{
		UserID:   user.ID,
		Username: user.Username,
		Balance:  user.WalletBalance,
		Display:  FormatAmount(user.WalletBalance),
	}, nil
}

// Transactions lists a user's ledger entries, newest first.
func (s *WalletService) Transactions(ctx context.Context, userID string, limit, offset int) ([]models.LedgerTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.LedgerTransaction{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []models.LedgerTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&txs).Error
	return txs, total, err
}

// UserSummary is the public part of a user record.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SearchUsers matches usernames case-insensitively. The house account is
// never listed.
func (s *WalletService) SearchUsers(ctx context.Context, query string, limit int) ([]UserSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.User{}).Where("is_house = ?", false).Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		db = db.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(query)+"%")
	}

	var users []models.User
	if err := db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{ID: u.ID, Username: u.Username}
	}
	return res, nil
}
