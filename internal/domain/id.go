package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	intentIDPrefix = "intent-"
	batchIDPrefix  = "batch-"
)

// IntentID = "intent-<uuid>"
func NewIntentID() string {
	return intentIDPrefix + uuid.NewString()
}

// BatchID = "batch-<uuid>"
func NewBatchID() string {
	return batchIDPrefix + uuid.NewString()
}

func IsBatchID(id string) bool {
	if !strings.HasPrefix(id, batchIDPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, batchIDPrefix))
	return err == nil
}
