package youtubeapi

import "regexp"

// Recognized URL shapes. Each pattern captures the 11-character id immediately
// following its marker; a trailing boundary keeps a longer run from matching.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?(?:[^#\s]*&)?v=([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`),
	regexp.MustCompile(`youtube\.com/embed/([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`),
	regexp.MustCompile(`youtube\.com/live/([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`),
}

var (
	bareIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	looseIDPattern = regexp.MustCompile(`[A-Za-z0-9_-]{11}`)
)

// ExtractVideoID resolves a pasted URL or raw id string to a canonical video id.
// Ordered attempts, first success wins: known URL shapes, bare 11-character id,
// then a loose scan for any 11-character id-like substring. The loose fallback
// is deliberately permissive: a wrong guess only yields a clear "video not
// found" downstream, never silent corruption.
func ExtractVideoID(input string) (string, bool) {
	if id, ok := extract(input, false); ok {
		return id, true
	}
	return "", false
}

// ExtractVideoIDStrict is ExtractVideoID without the loose substring fallback.
func ExtractVideoIDStrict(input string) (string, bool) {
	return extract(input, true)
}

func extract(input string, strict bool) (string, bool) {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(input); m != nil {
			return m[1], true
		}
	}
	if bareIDPattern.MatchString(input) {
		return input, true
	}
	if !strict {
		if m := looseIDPattern.FindString(input); m != "" {
			return m, true
		}
	}
	return "", false
}
