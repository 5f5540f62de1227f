package polling

import (
	"slices"
	"testing"

	"github.com/alfredjeanlab/walletd/internal/model"
)

func TestAddRejectsUntrackedCategories(t *testing.T) {
	changes := 0
	r := New(func(model.PollingTokens) { changes++ })

	for _, c := range []model.PollingCategory{model.PollingBackground, "", "sidePanelGasPollTokens"} {
		if r.Add("t1", c) {
			t.Errorf("Add(%q) accepted", c)
		}
		if r.Remove("t1", c) {
			t.Errorf("Remove(%q) accepted", c)
		}
	}
	if changes != 0 {
		t.Errorf("changes = %d, want 0", changes)
	}
	for c, toks := range r.Snapshot() {
		if len(toks) != 0 {
			t.Errorf("%s = %v, want empty", c, toks)
		}
	}
}

func TestAddKeepsOrderAndDuplicates(t *testing.T) {
	r := New(nil)
	for _, tok := range []string{"a", "b", "a"} {
		if !r.Add(tok, model.PollingPopup) {
			t.Fatalf("Add(%q) rejected", tok)
		}
	}
	r.Add("z", model.PollingFullScreen)

	if got := r.Tokens(model.PollingPopup); !slices.Equal(got, []string{"a", "b", "a"}) {
		t.Errorf("popup = %v", got)
	}
	if got := r.Tokens(model.PollingFullScreen); !slices.Equal(got, []string{"z"}) {
		t.Errorf("fullscreen = %v", got)
	}
	if got := r.Tokens(model.PollingNotification); len(got) != 0 {
		t.Errorf("notification = %v", got)
	}
}

func TestRemove(t *testing.T) {
	for _, tc := range []struct {
		name    string
		initial []string
		remove  string
		want    []string
		changed bool
	}{
		{"all occurrences", []string{"a", "b", "a"}, "a", []string{"b"}, true},
		{"absent token", []string{"a"}, "x", []string{"a"}, false},
		{"empty", nil, "a", nil, false},
		{"last token", []string{"a"}, "a", nil, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := New(nil)
			for _, tok := range tc.initial {
				r.Add(tok, model.PollingNotification)
			}
			changes := 0
			r.onChange = func(model.PollingTokens) { changes++ }

			if !r.Remove(tc.remove, model.PollingNotification) {
				t.Fatal("Remove rejected a tracked category")
			}
			if got := r.Tokens(model.PollingNotification); !slices.Equal(got, tc.want) {
				t.Errorf("tokens = %v, want %v", got, tc.want)
			}
			if (changes > 0) != tc.changed {
				t.Errorf("changed = %v, want %v", changes > 0, tc.changed)
			}
		})
	}
}

func TestRemoveOnlyTouchesItsCategory(t *testing.T) {
	r := New(nil)
	r.Add("a", model.PollingPopup)
	r.Add("a", model.PollingNotification)
	r.Remove("a", model.PollingPopup)

	if got := r.Tokens(model.PollingNotification); !slices.Equal(got, []string{"a"}) {
		t.Errorf("notification = %v", got)
	}
}

func TestClear(t *testing.T) {
	var last model.PollingTokens
	r := New(func(s model.PollingTokens) { last = s })
	r.Add("a", model.PollingPopup)
	r.Add("b", model.PollingNotification)
	r.Add("c", model.PollingFullScreen)
	r.Clear()

	for _, c := range model.PollingCategories {
		if toks, ok := last[c]; !ok || len(toks) != 0 {
			t.Errorf("%s after clear = %v (present=%v)", c, toks, ok)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New(nil)
	r.Add("a", model.PollingPopup)
	snap := r.Snapshot()
	snap[model.PollingPopup][0] = "mutated"

	if got := r.Tokens(model.PollingPopup); got[0] != "a" {
		t.Errorf("registry mutated through snapshot: %v", got)
	}
}

func TestLoadDropsUntracked(t *testing.T) {
	r := New(nil)
	r.Load(model.PollingTokens{
		model.PollingPopup:      {"p"},
		model.PollingBackground: {"bg"},
	})
	snap := r.Snapshot()
	if _, ok := snap[model.PollingBackground]; ok {
		t.Error("background category survived Load")
	}
	if !slices.Equal(snap[model.PollingPopup], []string{"p"}) {
		t.Errorf("popup = %v", snap[model.PollingPopup])
	}
}
