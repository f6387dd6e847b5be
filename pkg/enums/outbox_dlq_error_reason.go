package enums

// OutboxDLQErrorReason records why the publisher parked an outbox row
// instead of retrying it.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means Pub/Sub kept failing past the retry budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable means the broker rejected the message outright.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUndecodable means the stored envelope or its payload no
	// longer matches any known schema version.
	OutboxDLQReasonUndecodable OutboxDLQErrorReason = "undecodable"
	// OutboxDLQReasonUnrouted means no topic is configured for the event type.
	OutboxDLQReasonUnrouted OutboxDLQErrorReason = "unrouted"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUndecodable, OutboxDLQReasonUnrouted:
		return true
	}
	return false
}

// Replayable reports whether replaying the parked row can succeed without a
// code or configuration change.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts
}
