package similarity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// Similarity returns a score in [0,1] for how alike two titles are, based on
// the Levenshtein distance of their folded forms. Accents and non-Latin
// scripts are transliterated first, so "Amélie" equals "Amelie".
//
// When the shorter title is a word-aligned suffix covering at least 60% of the
// longer one ("The Office" vs "Office") the score is lifted into [0.96,1].
func Similarity(s1, s2 string) float64 {
	s1 = Fold(s1)
	s2 = Fold(s2)

	if s1 == s2 {
		return 1.0
	}
	if s1 == "" || s2 == "" {
		return 0.0
	}

	if score := suffixScore(s1, s2); score > 0 {
		return score
	}

	maxLen := max(len([]rune(s1)), len([]rune(s2)))
	return 1.0 - float64(levenshtein(s1, s2))/float64(maxLen)
}

// Fold lowercases, transliterates to ASCII and collapses punctuation so that
// titles compare on their words only. "&" reads as "and".
func Fold(s string) string {
	s = unidecode.Unidecode(strings.ReplaceAll(s, "&", " and "))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '_' || r == ':':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Scored pairs an arbitrary candidate with its score against a query.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Rank scores every candidate against query and returns them best first.
// Ties keep their input order. Prefix matches get a small boost so that
// "break" ranks "Breaking Bad" above "Brake".
func Rank[T any](query string, items []T, title func(T) string) []Scored[T] {
	q := Fold(query)
	out := make([]Scored[T], 0, len(items))
	for _, item := range items {
		t := title(item)
		score := Similarity(query, t)
		if q != "" && strings.HasPrefix(Fold(t), q) {
			score = min(1.0, score+0.25)
		}
		out = append(out, Scored[T]{Item: item, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func suffixScore(s1, s2 string) float64 {
	longer, shorter := s1, s2
	if len(s1) < len(s2) {
		longer, shorter = s2, s1
	}
	if !strings.HasSuffix(longer, shorter) {
		return 0
	}
	prefixLen := len(longer) - len(shorter)
	if prefixLen != 0 && longer[prefixLen-1] != ' ' {
		return 0
	}
	ratio := float64(len(shorter)) / float64(len(longer))
	if ratio < 0.6 {
		return 0
	}
	return 0.90 + ratio*0.10
}

func levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)

	// two rows are enough
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}
