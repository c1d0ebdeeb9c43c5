package recorder

import "strings"

// Quality selects the encoder bitrate.
type Quality int

const (
	Low Quality = iota
	Medium
	High
	Ultra
)

// DefaultBitrate is used for qualities outside the table.
const DefaultBitrate = 2_500_000

var qualities = [...]struct {
	name    string
	bitrate int
}{
	Low:    {"low", 1_000_000},
	Medium: {"medium", 2_500_000},
	High:   {"high", 5_000_000},
	Ultra:  {"ultra", 8_000_000},
}

func (q Quality) String() string {
	if q < 0 || int(q) >= len(qualities) {
		return "unknown"
	}
	return qualities[q].name
}

// Bitrate returns the target video bitrate in bits per second.
func (q Quality) Bitrate() int {
	if q < 0 || int(q) >= len(qualities) {
		return DefaultBitrate
	}
	return qualities[q].bitrate
}

// ParseQuality resolves a tier name, falling back to Medium.
func ParseQuality(name string) (Quality, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, q := range qualities {
		if q.name == n {
			return Quality(i), true
		}
	}
	return Medium, false
}

// Frame rate bounds accepted by Start.
const (
	MinFPS     = 15
	MaxFPS     = 60
	DefaultFPS = 30
)

// ClampFPS limits fps to [MinFPS, MaxFPS].
func ClampFPS(fps int) int {
	switch {
	case fps < MinFPS:
		return MinFPS
	case fps > MaxFPS:
		return MaxFPS
	}
	return fps
}
