// Package fuzzy maps noisy transcribed text onto a closed catalog of names.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Band classifies how much a match can be trusted.
type Band int

const (
	// Reject means the input matched nothing well enough.
	Reject Band = iota
	// Confirm means the match should be read back to the caller.
	Confirm
	// Accept means the match can be used without confirmation.
	Accept
)

func (b Band) String() string {
	switch b {
	case Accept:
		return "accept"
	case Confirm:
		return "confirm"
	default:
		return "reject"
	}
}

// Match is the best catalog entry for an input.
type Match struct {
	Value string
	Score int
	Band  Band
}

// Resolver scores input against catalogs using two thresholds.
type Resolver struct {
	Low  int
	High int
}

// NewResolver returns a Resolver, falling back to 60/85 for unset thresholds.
func NewResolver(low, high int) Resolver {
	if low <= 0 {
		low = 60
	}
	if high <= 0 {
		high = 85
	}
	return Resolver{Low: low, High: high}
}

func (r Resolver) band(score int) Band {
	switch {
	case score >= r.High:
		return Accept
	case score >= r.Low:
		return Confirm
	default:
		return Reject
	}
}

// Resolve scores the whole text against each catalog entry. ok is false when
// the text is empty or the best score falls below Low.
func (r Resolver) Resolve(text string, catalog []string) (Match, bool) {
	if normalize(text) == "" {
		return Match{Band: Reject}, false
	}
	best := Match{Score: -1}
	for _, entry := range catalog {
		if s := Score(text, entry); s > best.Score {
			best = Match{Value: entry, Score: s}
		}
	}
	return r.finish(best)
}

// Extract looks for a catalog entry anywhere inside a longer utterance by
// scoring token windows around each entry's length.
func (r Resolver) Extract(utterance string, catalog []string) (Match, bool) {
	tokens := strings.Fields(normalize(utterance))
	if len(tokens) == 0 {
		return Match{Band: Reject}, false
	}
	best := Match{Score: -1}
	for _, entry := range catalog {
		n := len(strings.Fields(normalize(entry)))
		if n == 0 {
			continue
		}
		for size := max(1, n-1); size <= n+1; size++ {
			for i := 0; i+size <= len(tokens); i++ {
				window := strings.Join(tokens[i:i+size], " ")
				if s := Score(window, entry); s > best.Score {
					best = Match{Value: entry, Score: s}
				}
			}
		}
	}
	return r.finish(best)
}

func (r Resolver) finish(best Match) (Match, bool) {
	if best.Score < 0 {
		return Match{Band: Reject}, false
	}
	best.Band = r.band(best.Score)
	if best.Band == Reject {
		return best, false
	}
	return best, true
}

// Score is a token-order-insensitive similarity in 0..100.
func Score(a, b string) int {
	x, y := sortTokens(a), sortTokens(b)
	if x == "" && y == "" {
		return 0
	}
	if x == y {
		return 100
	}
	longest := max(len([]rune(x)), len([]rune(y)))
	dist := levenshtein.ComputeDistance(x, y)
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}

func sortTokens(s string) string {
	tokens := strings.Fields(normalize(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
