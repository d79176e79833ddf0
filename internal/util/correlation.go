package util

import "github.com/google/uuid"

// CorrelationIDMaxLength is the maximum correlation id length the catalog API
// accepts on the IM-CorrelationID header.
const CorrelationIDMaxLength = 32

// CorrelationID generates a fresh per-call request tracing identifier.
// A UUID is 36 characters with hyphens, so the value is truncated to the
// 32-character cap the upstream contract imposes.
func CorrelationID() string {
	id := uuid.NewString()
	if len(id) > CorrelationIDMaxLength {
		id = id[:CorrelationIDMaxLength]
	}
	return id
}
