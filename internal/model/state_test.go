package model

import "testing"

func TestPollingCategoryIsValid(t *testing.T) {
	for _, tc := range []struct {
		category PollingCategory
		want     bool
	}{
		{PollingPopup, true},
		{PollingNotification, true},
		{PollingFullScreen, true},
		{PollingBackground, false},
		{"", false},
		{"sidePanelGasPollTokens", false},
	} {
		if got := tc.category.IsValid(); got != tc.want {
			t.Errorf("%q.IsValid() = %v, want %v", tc.category, got, tc.want)
		}
	}
}

func TestCategoryForEnvironment(t *testing.T) {
	for env, want := range map[string]PollingCategory{
		EnvironmentPopup:        PollingPopup,
		EnvironmentNotification: PollingNotification,
		EnvironmentFullScreen:   PollingFullScreen,
		EnvironmentBackground:   PollingBackground,
		"sidepanel":             "",
	} {
		if got := CategoryForEnvironment(env); got != want {
			t.Errorf("CategoryForEnvironment(%q) = %q, want %q", env, got, want)
		}
	}
}

func TestStatusRequestValidate(t *testing.T) {
	valid := StatusRequest{BridgeID: "lifi", SrcTxHash: "0xabc", Bridge: "across", SrcChainID: 1, DestChainID: 10}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid request: %v", err)
	}

	missingHash := valid
	missingHash.SrcTxHash = ""
	if err := missingHash.Validate(); err == nil {
		t.Error("expected error for missing srcTxHash")
	}

	missingDest := valid
	missingDest.DestChainID = 0
	if err := missingDest.Validate(); err == nil {
		t.Error("expected error for missing destChainId")
	}
}

func TestBridgeStatusIsValid(t *testing.T) {
	for _, s := range []BridgeStatus{BridgeStatusPending, BridgeStatusComplete, BridgeStatusFailed, BridgeStatusUnknown} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if BridgeStatus("DONE").IsValid() {
		t.Error(`"DONE" should not be valid`)
	}
}
