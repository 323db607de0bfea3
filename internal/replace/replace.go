// Package replace applies a user's text replacement rules to relayed
// messages.
package replace

import (
	"sort"
	"strings"

	"github.com/parvesh-spec/messageforwarder/internal/model"
)

// Rule is one original/replacement pair.
type Rule struct {
	ID          uint
	Original    string
	Replacement string
}

// Replacer rewrites text in a single left-to-right pass. At each position the
// longest matching original wins; equal lengths fall back to rule id order.
// Replaced text is never scanned again.
type Replacer struct {
	rules    []Rule
	replacer *strings.Replacer
}

// New builds a Replacer from the active rules with a non-empty original.
func New(rules []model.TextReplacement) *Replacer {
	var active []Rule
	for _, r := range rules {
		if !r.IsActive || r.Original == "" {
			continue
		}
		active = append(active, Rule{ID: r.ID, Original: r.Original, Replacement: r.Replacement})
	}
	return FromRules(active)
}

func FromRules(rules []Rule) *Replacer {
	sorted := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Original != "" {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := len(sorted[i].Original), len(sorted[j].Original)
		if li != lj {
			return li > lj
		}
		return sorted[i].ID < sorted[j].ID
	})

	r := &Replacer{rules: sorted}
	if len(sorted) > 0 {
		pairs := make([]string, 0, 2*len(sorted))
		for _, rule := range sorted {
			pairs = append(pairs, rule.Original, rule.Replacement)
		}
		// strings.Replacer prefers earlier pairs at a given position.
		r.replacer = strings.NewReplacer(pairs...)
	}
	return r
}

// Apply returns the rewritten text and whether anything changed.
func (r *Replacer) Apply(text string) (string, bool) {
	if r == nil || r.replacer == nil || text == "" {
		return text, false
	}
	out := r.replacer.Replace(text)
	return out, out != text
}

func (r *Replacer) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Rules returns the effective rules in matching priority order.
func (r *Replacer) Rules() []Rule {
	if r == nil {
		return nil
	}
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}
