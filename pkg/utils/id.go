package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRunPrefix is the label prefix for simulator runs ("PC" = parameter combination)
const DefaultRunPrefix = "PC"

// GenerateCampaignID generates a campaign ID with a timestamp prefix
func GenerateCampaignID() string {
	timestamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("cal-%s-%s", timestamp, uuid.New().String()[:8])
}

// RunLabel returns the label of the n-th evaluated parameter combination (1-based)
func RunLabel(prefix string, n int) string {
	if prefix == "" {
		prefix = DefaultRunPrefix
	}
	return prefix + strconv.Itoa(n)
}

// ParseRunLabel extracts the sequence number from a run label such as "PC12"
func ParseRunLabel(prefix, label string) (int, error) {
	if prefix == "" {
		prefix = DefaultRunPrefix
	}
	label = strings.TrimSpace(label)
	if !strings.HasPrefix(label, prefix) {
		return 0, fmt.Errorf("run label %q does not start with %q", label, prefix)
	}
	n, err := strconv.Atoi(label[len(prefix):])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("run label %q has no positive sequence number", label)
	}
	return n, nil
}
