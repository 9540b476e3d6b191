// Package moderation provides the fixed-denylist screen applied to relayed
// text. A hit is advisory only: the message is still delivered to the
// partner, and a copy is forwarded to the moderator sink for review.
package moderation

import "strings"

// defaultDenylist is the fixed set of suspicious substrings. Links and the
// Russian-language solicitation terms come from the product's moderation
// policy; matching is case-insensitive substring containment.
var defaultDenylist = []string{
	"http",
	"цп",
	"детское",
	"продаю",
	"продам",
}

// FilterResult is the outcome of screening one message.
type FilterResult struct {
	Flagged bool
	Term    string // the denylist term that matched, empty when clean
}

// Filter screens relayed text against a denylist. It is immutable after
// construction and safe for concurrent use.
type Filter struct {
	terms []string
}

// NewFilter returns a filter with the default denylist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultDenylist)
}

// NewFilterWithTerms returns a filter with a custom denylist. Empty and
// whitespace-only terms are dropped; terms are lowercased once here so Check
// only lowercases the input.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			f.terms = append(f.terms, term)
		}
	}
	return f
}

// Check screens text and returns the first matching term. The first term in
// denylist order wins, which keeps results deterministic under test.
func (f *Filter) Check(text string) FilterResult {
	lowered := strings.ToLower(text)
	for _, term := range f.terms {
		if strings.Contains(lowered, term) {
			return FilterResult{Flagged: true, Term: term}
		}
	}
	return FilterResult{}
}
