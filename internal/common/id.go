package common

import (
	"github.com/google/uuid"
)

// NewGroupID generates a unique group ID with the "grp_" prefix.
// Every instance fanned out from one specification shares a group ID.
func NewGroupID() string {
	return "grp_" + uuid.New().String()
}

// NewInstanceID generates a unique run instance ID with the "run_" prefix
func NewInstanceID() string {
	return "run_" + uuid.New().String()
}
