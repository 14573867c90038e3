package transcriber

import (
	"regexp"
	"strings"
)

// Speech models emit stock subtitle-credit lines on near-silent audio.
// Matched text is flagged, never dropped: the session record stays complete
// and downstream consumers decide what to hide.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^sous-?titrage st'? 501$`),
	regexp.MustCompile(`^sous-?titrage fr \?$`),
	regexp.MustCompile(`^sous-?titrage société radio-canada$`),
	regexp.MustCompile(`^sous-?titres par jérémy diaz$`),
	regexp.MustCompile(`^– sous-?titrage fr 2021$`),
	regexp.MustCompile(`^subtitles by the amara\.org community$`),
	regexp.MustCompile(`^subtitles created by`),
	regexp.MustCompile(`^thanks? (you )?for watching[.!]?$`),
	regexp.MustCompile(`^\[(music|musique|applause)\]$`),
}

// IsSubtitleNoise reports whether text looks like a known transcription
// hallucination. Matching is case-insensitive on whitespace-normalized text.
func IsSubtitleNoise(text string) bool {
	t := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if t == "" {
		return false
	}
	for _, pattern := range noisePatterns {
		if pattern.MatchString(t) {
			return true
		}
	}
	return false
}
