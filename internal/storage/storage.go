package storage

import (
	"context"

	"github.com/xaenox/pace-bot/internal/models"
)

// Storage is the turn journal. It records how every turn ended for auditing
// and evaluation; it does not hold conversation state.
type Storage interface {
	SaveTurn(ctx context.Context, rec *models.TurnRecord) error
	GetSessionTurns(ctx context.Context, sessionID string, limit int) ([]*models.TurnRecord, error)
	OutcomeCounts(ctx context.Context) (map[models.Outcome]int, error)
	Close() error
}
