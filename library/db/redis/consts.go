package redis

const (
	keyPrefix           = "laisky/"
	keyPrefixModeration = keyPrefix + "moderation/"

	// KeyModerationPending holds tasks waiting for a worker
	KeyModerationPending = keyPrefixModeration + "tasks/pending"
	// KeyModerationProcessing holds tasks claimed by a worker but not yet acknowledged
	KeyModerationProcessing = keyPrefixModeration + "tasks/processing"
	// KeyModerationDead holds tasks removed from circulation
	KeyModerationDead = keyPrefixModeration + "tasks/dead"
	// KeyPrefixCommentLock is the key prefix for per-comment leases
	KeyPrefixCommentLock = keyPrefixModeration + "locks/"
	// KeyPrefixSpamVerdict is the key prefix for cached classifier scores
	KeyPrefixSpamVerdict = keyPrefixModeration + "verdicts/"
)
