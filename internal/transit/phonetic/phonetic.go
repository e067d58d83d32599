// Package phonetic resolves loosely spelled or mis-heard place names (bus
// stops, landmarks) against a list of known names.
//
// Matching runs in two stages. First, Double Metaphone codes of the query
// tokens are compared with the codes of each known name; names sharing a code
// are phonetic candidates and are ranked by Jaro-Winkler similarity. If no
// phonetic candidate clears its threshold, plain Jaro-Winkler similarity is
// tried against every name with a stricter threshold.
//
// Transliterated Tamil names are spelled many ways ("Kapaleeswarar",
// "Kapaleeshwarar", "Kabaleeswarar"), which is where the phonetic stage earns
// its keep.
package phonetic

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a phonetic candidate.
// Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum similarity for the non-phonetic
// fallback. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Candidate is one ranked match.
type Candidate struct {
	Name     string
	Score    float64
	Phonetic bool
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the given options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the known name that best matches query. When nothing clears
// the thresholds, name is query unchanged, score is 0 and ok is false.
func (m *Matcher) Match(query string, names []string) (name string, score float64, ok bool) {
	ranked := m.Rank(query, names)
	if len(ranked) == 0 {
		return query, 0, false
	}
	return ranked[0].Name, ranked[0].Score, true
}

// Rank returns every name that clears its threshold, best first. Phonetic
// candidates always rank above fuzzy-only ones, and fuzzy-only candidates are
// returned only when there is no phonetic candidate at all.
func (m *Matcher) Rank(query string, names []string) []Candidate {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(names) == 0 {
		return nil
	}
	qTokens := strings.Fields(q)
	qCodes := codes(qTokens)

	var phonetic, fuzzy []Candidate
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		nTokens := strings.Fields(n)
		score := similarity(qTokens, nTokens, q, n)

		switch {
		case overlaps(qCodes, codes(nTokens)) && score >= m.phoneticThreshold:
			phonetic = append(phonetic, Candidate{Name: name, Score: score, Phonetic: true})
		case score >= m.fuzzyThreshold:
			fuzzy = append(fuzzy, Candidate{Name: name, Score: score})
		}
	}

	out := phonetic
	if len(out) == 0 {
		out = fuzzy
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// codes returns the set of Double Metaphone codes for tokens, skipping empty
// codes produced by vowel-only or very short words.
func codes(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			set[p] = struct{}{}
		}
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best of the full-string Jaro-Winkler score, the
// space-stripped score and the token coverage in both directions. Coverage
// averages, for every token on one side, its best match on the other side,
// so "rockfort" finds "Rockfort Temple" while a shared "temple" alone does
// not make two temples equal.
func similarity(qTokens, nTokens []string, q, n string) float64 {
	best := matchr.JaroWinkler(q, n, false)

	if len(qTokens) > 1 || len(nTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(nTokens, ""), false); s > best {
			best = s
		}
	}
	if s := coverage(qTokens, nTokens); s > best {
		best = s
	}
	if s := coverage(nTokens, qTokens); s > best {
		best = s
	}
	return best
}

func coverage(from, to []string) float64 {
	if len(from) == 0 || len(to) == 0 {
		return 0
	}
	var sum float64
	for _, a := range from {
		var top float64
		for _, b := range to {
			if s := matchr.JaroWinkler(a, b, false); s > top {
				top = s
			}
		}
		sum += top
	}
	return sum / float64(len(from))
}
