package services

import (
	"context"
	"log"

	"game-wager-system/models"

	"gorm.io/gorm"
)

// IdleReconciler refunds lobbies nobody joined before the idle timeout.
type IdleReconciler struct {
	DB     *gorm.DB
	Escrow *EscrowService
}

func NewIdleReconciler(db *gorm.DB, escrow *EscrowService) *IdleReconciler {
	return &IdleReconciler{DB: db, Escrow: escrow}
}

// CheckLobby is the handler for a lobby's idle check. A lobby that filled up
// or already closed is left alone. Returns whether a refund happened.
func (r *IdleReconciler) CheckLobby(ctx context.Context, lobbyID string) (bool, error) {
	var result *RefundResult
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lobby, err := lockLobby(tx, lobbyID)
		if err != nil {
			return err
		}
		if !lobby.Open() || len(lobby.Participants) > 1 {
			return nil
		}
		escrow, _, err := latestEscrow(tx, lobbyID)
		if err != nil {
			return err
		}
		result, err = r.Escrow.Refund(tx, escrow, "", models.TxWagerRefund)
		if err != nil {
			return err
		}
		return r.Escrow.killLobby(tx, lobby)
	})
	if err != nil {
		log.Printf("[IDLE] ❌ idle check for lobby %s failed: %v", lobbyID, err)
		return false, err
	}
	if result == nil {
		log.Printf("[IDLE] lobby %s is in use, nothing to do", lobbyID)
		return false, nil
	}

	log.Printf("[IDLE] 💤 lobby %s abandoned, refunded %d", lobbyID, result.Shares[0].Amount)
	r.Escrow.notifyRefund(ctx, result)
	return true, nil
}
