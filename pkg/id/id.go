package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const SettlementPrefix = "STL"

// Reference builds <prefix><unix seconds><6 uppercase alphanumerics>.
// Uniqueness is enforced by the database, callers retry on collision.
func Reference(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:6]
	return fmt.Sprintf("%s%d%s", prefix, now.Unix(), suffix)
}

func SettlementReference(now time.Time) string {
	return Reference(SettlementPrefix, now)
}
