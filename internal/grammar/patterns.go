// =============================================================================
// CTe/NFe Key Linker - Key Grammar
// =============================================================================
//
// This package recognizes 44-digit fiscal keys inside raw document text.
// It never builds a DOM: every pattern runs on the text with all whitespace
// removed, so that keys split across lines still match.
//
// MARKER FAMILIES:
//   1. Transport keys (CTe):
//        <chCTe>KEY</chCTe>, <infCteComp><chave>KEY</chave></infCteComp>, ...
//      Any opening/closing pair containing "CTe" qualifies; the two markers
//      are not compared.
//   2. Invoice keys (NFe):
//        <infNFe><chave>KEY</chave>...</infNFe>
//      The opening and closing markers are captured separately; the caller
//      keeps the match only when both are identical (see InvoiceMatch.Origin).
//
// All patterns are case-insensitive. A Patterns value is compiled once and is
// safe for concurrent use by any number of workers.
//
// =============================================================================

package grammar

import (
	"iter"
	"regexp"
)

// =============================================================================
// PATTERN DEFINITIONS
// =============================================================================

const (
	// documentMarkerExpr identifies a CTe document (cteProc or procEventoCTe).
	documentMarkerExpr = `(?is)<\s*(?:cteProc|procEventoCTe)`

	// whitespaceExpr matches every whitespace run, newlines included.
	whitespaceExpr = `\s+`

	// transportKeyExpr captures the key between two CTe markers.
	transportKeyExpr = `(?is)<\w+CTe\w*>(?:<chave>)?(\d{44})(?:</chave>)?</\w+CTe\w*>`

	// invoiceKeyExpr captures opening marker, key and closing marker.
	// The lazy run between key and closing marker skips sibling elements
	// such as <infUnidTransp>.
	invoiceKeyExpr = `(?is)<(\w*NFe\w*)>(?:<chave>)?(\d{44})(?:</chave>)?.*?</(\w*NFe\w*)>`
)

// Patterns holds the precompiled expressions used by the extractor.
type Patterns struct {
	documentMarker *regexp.Regexp
	whitespace     *regexp.Regexp
	transportKey   *regexp.Regexp
	invoiceKey     *regexp.Regexp
}

// Compile builds the pattern set. It only fails if an expression above is
// malformed.
func Compile() (*Patterns, error) {
	exprs := []string{documentMarkerExpr, whitespaceExpr, transportKeyExpr, invoiceKeyExpr}
	compiled := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		compiled[i] = re
	}

	return &Patterns{
		documentMarker: compiled[0],
		whitespace:     compiled[1],
		transportKey:   compiled[2],
		invoiceKey:     compiled[3],
	}, nil
}

var defaultPatterns = MustCompile()

// MustCompile is like Compile but panics on error.
func MustCompile() *Patterns {
	p, err := Compile()
	if err != nil {
		panic("grammar: " + err.Error())
	}
	return p
}

// Default returns the process-wide pattern set.
func Default() *Patterns {
	return defaultPatterns
}

// =============================================================================
// MATCH RECORDS
// =============================================================================

// TransportMatch is a raw CTe key occurrence.
type TransportMatch struct {
	Key string
}

// InvoiceMatch is a raw NFe key occurrence with both enclosing markers.
type InvoiceMatch struct {
	Opening string
	Key     string
	Closing string
}

// Origin returns the origin marker and true when the opening and closing
// markers are identical and non-empty. Otherwise the match belongs to two
// different elements and must be skipped.
func (m InvoiceMatch) Origin() (string, bool) {
	if m.Opening == "" || m.Opening != m.Closing {
		return "", false
	}
	return m.Opening, true
}

// =============================================================================
// MATCHING
// =============================================================================

// Normalize removes every whitespace run from text.
func (p *Patterns) Normalize(text string) string {
	return p.whitespace.ReplaceAllString(text, "")
}

// IsTransportDocument reports whether text looks like a CTe document.
// It is a coarse check used to pre-filter candidate files.
func (p *Patterns) IsTransportDocument(text string) bool {
	return p.documentMarker.MatchString(text)
}

// TransportMatches lazily yields every CTe key occurrence in normalized text.
func (p *Patterns) TransportMatches(text string) iter.Seq[TransportMatch] {
	return func(yield func(TransportMatch) bool) {
		for loc := range scan(p.transportKey, text) {
			if !yield(TransportMatch{Key: group(text, loc, 1)}) {
				return
			}
		}
	}
}

// InvoiceMatches lazily yields every NFe key occurrence in normalized text.
func (p *Patterns) InvoiceMatches(text string) iter.Seq[InvoiceMatch] {
	return func(yield func(InvoiceMatch) bool) {
		for loc := range scan(p.invoiceKey, text) {
			m := InvoiceMatch{
				Opening: group(text, loc, 1),
				Key:     group(text, loc, 2),
				Closing: group(text, loc, 3),
			}
			if !yield(m) {
				return
			}
		}
	}
}

// scan yields the submatch indexes of successive non-overlapping matches,
// each relative to the start of text. Matching resumes after the end of the
// previous match, as FindAll does, without materializing every match.
func scan(re *regexp.Regexp, text string) iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		pos := 0
		for pos <= len(text) {
			loc := re.FindStringSubmatchIndex(text[pos:])
			if loc == nil {
				return
			}
			for i := range loc {
				if loc[i] >= 0 {
					loc[i] += pos
				}
			}
			if !yield(loc) {
				return
			}
			if loc[1] == loc[0] {
				pos = loc[1] + 1
			} else {
				pos = loc[1]
			}
		}
	}
}

// group returns capture group n, or "" when it did not participate.
func group(text string, loc []int, n int) string {
	start, end := loc[2*n], loc[2*n+1]
	if start < 0 {
		return ""
	}
	return text[start:end]
}
