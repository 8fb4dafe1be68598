package shared

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefIDFormat(t *testing.T) {
	at := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)

	for _, prefix := range []string{"BUD", "REQ", "EMR"} {
		id := RefID(prefix, at)
		require.Regexp(t, regexp.MustCompile(`^`+prefix+`-2509-\d{3}$`), id)
	}
}

func TestRefIDZeroTimeUsesNow(t *testing.T) {
	id := RefID("BUD", time.Time{})
	want := "BUD-" + time.Now().Format("0601") + `-\d{3}$`
	require.Regexp(t, "^"+want, id)
}
