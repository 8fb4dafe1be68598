package shared

import (
	"fmt"
	"math/rand"
	"time"
)

// RefID builds a human-readable display identifier like BUD-2405-031:
// prefix, two-digit year, two-digit month and a three-digit random suffix.
// The result is display-only and not collision free; callers that persist
// it under a unique index should retry on conflict.
func RefID(prefix string, at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("%s-%s-%03d", prefix, at.Format("0601"), rand.Intn(1000))
}
