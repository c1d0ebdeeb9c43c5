package compositor

import "strings"

// Layout selects how the four inputs are arranged on the output canvas.
type Layout int

const (
	Quad Layout = iota
	Stack
	Split
	Single
)

var layoutNames = [...]string{"quad", "stack", "split", "single"}

func (l Layout) String() string {
	if l < 0 || int(l) >= len(layoutNames) {
		return "unknown"
	}
	return layoutNames[l]
}

// ParseLayout resolves a layout name. Unknown names resolve to Quad.
func ParseLayout(name string) (Layout, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, ln := range layoutNames {
		if ln == n {
			return Layout(i), true
		}
	}
	return Quad, false
}
