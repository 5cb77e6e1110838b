package redis

import (
	"time"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
)

// ModerationDelivery is the envelope stored in the moderation task lists
type ModerationDelivery struct {
	Task *model.ModerationTask `json:"task"`
	// Attempts counts failed handler runs of this delivery
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	// LastError is set when the delivery is retried or dead-lettered
	LastError string `json:"last_error,omitempty"`
}
