package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/rokuonkun/internal/repository"
)

// renderTranscript formats the session's indexed events as a plain-text log,
// one line per utterance with the offset from session start. Noise-flagged
// and empty events are left out; the complete record stays in transcript.jsonl
// and the database. Returns "" when nothing is worth posting.
func renderTranscript(sess *Session, events []repository.TranscriptEventRow) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Text == "" || ev.IsNoise {
			continue
		}
		name := ev.Player
		if name == "" {
			name = ev.UserID
		}
		if ev.Character != "" {
			name = fmt.Sprintf("%s (%s)", name, ev.Character)
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", formatOffset(ev.StartedAt.Sub(sess.StartedAt)), name, ev.Text)
	}
	return b.String()
}

func formatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
