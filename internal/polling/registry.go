// Package polling tracks the opaque tokens UI surfaces hold while they
// poll for gas fee estimates. Tokens are grouped by surface; the
// background environment never holds tokens.
package polling

import (
	"slices"
	"sync"

	"github.com/alfredjeanlab/walletd/internal/model"
)

// Registry is an ordered multiset of tokens per category. It is safe for
// concurrent use.
type Registry struct {
	onChange func(model.PollingTokens)

	mu     sync.Mutex
	tokens map[model.PollingCategory][]string
}

// New creates an empty registry. onChange, if non-nil, receives a snapshot
// after every mutation that changed something.
func New(onChange func(model.PollingTokens)) *Registry {
	return &Registry{
		onChange: onChange,
		tokens:   make(map[model.PollingCategory][]string),
	}
}

// Load replaces the registry contents without firing onChange. Tokens in
// untracked categories are dropped.
func (r *Registry) Load(tokens model.PollingTokens) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = make(map[model.PollingCategory][]string)
	for _, c := range model.PollingCategories {
		if len(tokens[c]) > 0 {
			r.tokens[c] = slices.Clone(tokens[c])
		}
	}
}

// Add appends token to category. Duplicates are kept. It returns false
// when the category is the background or unknown.
func (r *Registry) Add(token string, category model.PollingCategory) bool {
	if !category.IsValid() {
		return false
	}
	r.mu.Lock()
	r.tokens[category] = append(r.tokens[category], token)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(snap)
	return true
}

// Remove drops every occurrence of token from category. It returns false
// when the category is rejected; removing an absent token is not an error.
func (r *Registry) Remove(token string, category model.PollingCategory) bool {
	if !category.IsValid() {
		return false
	}
	r.mu.Lock()
	before := len(r.tokens[category])
	r.tokens[category] = slices.DeleteFunc(r.tokens[category], func(t string) bool { return t == token })
	if len(r.tokens[category]) == 0 {
		delete(r.tokens, category)
	}
	removed := before != len(r.tokens[category])
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if removed {
		r.changed(snap)
	}
	return true
}

// Clear empties every category.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.tokens = make(map[model.PollingCategory][]string)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(snap)
}

// Tokens returns a copy of one category's tokens in insertion order.
func (r *Registry) Tokens(category model.PollingCategory) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.tokens[category])
}

// Snapshot returns a copy of every category. All tracked categories are
// present, empty ones as empty slices.
func (r *Registry) Snapshot() model.PollingTokens {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() model.PollingTokens {
	out := make(model.PollingTokens, len(model.PollingCategories))
	for _, c := range model.PollingCategories {
		toks := slices.Clone(r.tokens[c])
		if toks == nil {
			toks = []string{}
		}
		out[c] = toks
	}
	return out
}

func (r *Registry) changed(snap model.PollingTokens) {
	if r.onChange != nil {
		r.onChange(snap)
	}
}
