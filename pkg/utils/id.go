package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a random UUID string
func GenerateID() string {
	return uuid.NewString()
}

// GenerateRunID generates a tuning run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "tune-" + timestamp + "-" + short
}
