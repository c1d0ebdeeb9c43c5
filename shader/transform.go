// Package shader turns user shader text into complete fragment programs:
// it wraps mainImage shaders in the standard uniform interface, upgrades
// legacy programs, and splices in the effect-chain library.
package shader

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/richinsley/goshadermixer/effects"
)

// Provenance says what form a shader source was authored in.
type Provenance int

const (
	// ProvenanceImage is the shorthand form that only defines
	// mainImage(out vec4, in vec2).
	ProvenanceImage Provenance = iota
	// ProvenanceProgram is an already complete fragment program with main().
	ProvenanceProgram
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceImage:
		return "image"
	case ProvenanceProgram:
		return "program"
	}
	return fmt.Sprintf("Provenance(%d)", int(p))
}

func ParseProvenance(s string) (Provenance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "image":
		return ProvenanceImage, nil
	case "program":
		return ProvenanceProgram, nil
	}
	return 0, fmt.Errorf("unknown shader provenance %q", s)
}

// DetectProvenance classifies source by its entry point. Sources with a
// main are programs; everything else is treated as the mainImage form.
func DetectProvenance(source string) Provenance {
	if reMain.MatchString(maskComments(source)) {
		return ProvenanceProgram
	}
	return ProvenanceImage
}

var (
	// ErrNoEntryPoint is returned when a source defines neither mainImage nor main.
	ErrNoEntryPoint = errors.New("no mainImage or main entry point")
	// ErrNoColorWrite is returned when main never assigns the fragment output,
	// which leaves nowhere to apply the effect chain.
	ErrNoColorWrite = errors.New("no final color write in main")
)

var (
	reMainImage = regexp.MustCompile(`\bvoid\s+mainImage\s*\(`)
	reMain      = regexp.MustCompile(`\bvoid\s+main\s*\(`)
	reVersion   = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*version\b`)
	reOutVec4   = regexp.MustCompile(`\bout\s+(?:(?:highp|mediump|lowp)\s+)?vec4\s+(\w+)\s*;`)
	reFragColor = regexp.MustCompile(`\bgl_FragColor\b`)
)

// Transform returns the complete program source for a shader. The result
// depends only on its arguments, and no GPU state is touched.
//
// A source that defines mainImage and no main is wrapped in the standard
// preamble whatever its provenance. The effect library for present is then
// injected before main, and the last write to the fragment output inside
// main is rewritten to pass through applyEffects.
func Transform(source string, prov Provenance, present effects.KindSet) (string, error) {
	masked := maskComments(source)
	hasMain := reMain.MatchString(masked)
	hasImage := reMainImage.MatchString(masked)

	var src string
	switch {
	case hasMain:
		src = upgradeLegacy(source, masked)
	case hasImage:
		src = Preamble() + source + "\n" + mainWrapper
	default:
		return "", fmt.Errorf("%s shader: %w", prov, ErrNoEntryPoint)
	}

	out, err := injectEffects(src, present)
	if err != nil {
		return "", fmt.Errorf("%s shader: %w", prov, err)
	}
	return out, nil
}

// legacyTokens maps GLSL ES 1.00 identifiers onto their 3.00 forms.
var legacyTokens = []struct {
	re   *regexp.Regexp
	with string
}{
	{reFragColor, OutputName},
	{regexp.MustCompile(`\btexture2D\b`), "texture"},
	{regexp.MustCompile(`\bvarying\b`), "in"},
}

// upgradeLegacy prepends a GLSL ES 3.00 header to unversioned sources and
// rewrites the ES 1.00 identifiers outside comments.
func upgradeLegacy(source, masked string) string {
	if reVersion.MatchString(masked) {
		return source
	}
	header := legacyHeader
	if reFragColor.MatchString(masked) && !reOutVec4.MatchString(masked) {
		header += "out vec4 " + OutputName + ";\n"
	}
	type edit struct {
		start, end int
		with       string
	}
	var edits []edit
	for _, tok := range legacyTokens {
		for _, loc := range tok.re.FindAllStringIndex(masked, -1) {
			edits = append(edits, edit{loc[0], loc[1], tok.with})
		}
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	b.WriteString(header)
	last := 0
	for _, e := range edits {
		b.WriteString(source[last:e.start])
		b.WriteString(e.with)
		last = e.end
	}
	b.WriteString(source[last:])
	return b.String()
}

func injectEffects(src string, present effects.KindSet) (string, error) {
	masked := maskComments(src)
	mainLoc := reMain.FindStringIndex(masked)
	if mainLoc == nil {
		return "", ErrNoEntryPoint
	}
	open := strings.IndexByte(masked[mainLoc[1]:], '{')
	if open < 0 {
		return "", ErrNoEntryPoint
	}
	open += mainLoc[1]
	end := matchingBrace(masked, open)
	if end < 0 {
		return "", ErrNoEntryPoint
	}

	output := "gl_FragColor"
	if m := reOutVec4.FindStringSubmatch(masked); m != nil {
		output = m[1]
	}
	w, ok := lastWrite(masked, open+1, end, output)
	if !ok {
		return "", fmt.Errorf("%w to %s", ErrNoColorWrite, output)
	}

	var b strings.Builder
	b.Grow(len(src) + 8192)
	b.WriteString(src[:mainLoc[0]])
	b.WriteString(effects.Library(present))
	if w.plain {
		b.WriteString(src[mainLoc[0]:w.rhs])
		fmt.Fprintf(&b, " %s((%s), %s)", effects.ApplyFunc, strings.TrimSpace(src[w.rhs:w.end]), effectArgs)
		b.WriteString(src[w.end:])
		return b.String(), nil
	}
	// compound and swizzled writes keep their statement; the result is
	// filtered right after it
	b.WriteString(src[mainLoc[0] : w.end+1])
	fmt.Fprintf(&b, " %s = %s(%s, %s);", output, effects.ApplyFunc, output, effectArgs)
	b.WriteString(src[w.end+1:])
	return b.String(), nil
}

var effectArgs = "gl_FragCoord.xy / " + effects.ResolutionUniform + ", " + effects.InputUniform

// colorWrite locates a statement that writes the output color.
type colorWrite struct {
	rhs   int  // start of the right-hand side
	end   int  // index of the terminating ';'
	plain bool // a whole-value '=' rather than a compound or swizzled write
}

// lastWrite finds the last statement within masked[from:to] that assigns
// to name, through '=', a compound operator or a swizzle.
func lastWrite(masked string, from, to int, name string) (colorWrite, bool) {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `(\s*\.\s*[xyzwrgbastpq]+)?\s*([-+*/%&|^]|<<|>>)?=`)
	body := masked[from:to]
	var (
		last  colorWrite
		found bool
	)
	for _, m := range re.FindAllStringSubmatchIndex(body, -1) {
		if m[1] < len(body) && body[m[1]] == '=' {
			continue // comparison
		}
		if m[0] > 0 && body[m[0]-1] == '.' {
			continue
		}
		semi := statementEnd(body, m[1])
		if semi < 0 {
			continue
		}
		last = colorWrite{rhs: from + m[1], end: from + semi, plain: m[2] < 0 && m[4] < 0}
		found = true
	}
	return last, found
}

// statementEnd returns the index of the first ';' at bracket depth zero.
func statementEnd(s string, from int) int {
	depth := 0
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return -1
			}
		case ';':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// maskComments blanks out comments byte for byte, keeping newlines, so that
// offsets into the result are offsets into s.
func maskComments(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] != '/' || i+1 >= len(b) {
			continue
		}
		switch b[i+1] {
		case '/':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case '*':
			b[i], b[i+1] = ' ', ' '
			i += 2
			for ; i < len(b); i++ {
				if b[i] == '*' && i+1 < len(b) && b[i+1] == '/' {
					b[i], b[i+1] = ' ', ' '
					i++
					break
				}
				if b[i] != '\n' {
					b[i] = ' '
				}
			}
		}
	}
	return string(b)
}
