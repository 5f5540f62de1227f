package ui

import "testing"

func TestRenderHonorsNoColor(t *testing.T) {
	saved := noColor
	t.Cleanup(func() { noColor = saved })

	noColor = false
	if got := RenderLockState(true); got == "unlocked" {
		t.Errorf("expected ANSI codes around %q", got)
	}

	ForceNoColor()
	for _, tc := range []struct {
		got, want string
	}{
		{RenderLockState(true), "unlocked"},
		{RenderLockState(false), "locked"},
		{RenderBridgeStatus("COMPLETE"), "COMPLETE"},
		{RenderBridgeStatus("UNKNOWN"), "UNKNOWN"},
		{RenderAccent("x"), "x"},
	} {
		if tc.got != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestColorFromEnv(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty default", nil, true, true},
		{"pipe default", nil, false, false},
		{"no color", map[string]string{"NO_COLOR": "1"}, true, false},
		{"force", map[string]string{"CLICOLOR_FORCE": "1"}, false, true},
		{"clicolor off", map[string]string{"CLICOLOR": "0"}, true, false},
		{"always beats no color", map[string]string{"WALLETD_COLOR": "always", "NO_COLOR": "1"}, false, true},
		{"never beats force", map[string]string{"WALLETD_COLOR": "Never", "CLICOLOR_FORCE": "1"}, true, false},
		{"auto falls through", map[string]string{"WALLETD_COLOR": "auto"}, true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := colorFromEnv(func(k string) string { return tc.env[k] }, func() bool { return tc.tty })
			if got != tc.want {
				t.Errorf("colorFromEnv = %v, want %v", got, tc.want)
			}
		})
	}
}
