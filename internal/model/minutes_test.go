package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestMinutesUnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  Minutes
	}{
		{`15`, 15},
		{`"15"`, 15},
		{`" 2.5 "`, 2.5},
		{`0`, 0},
		{`null`, 0},
		{`"abc"`, 0},
		{`-3`, 0},
		{`true`, 0},
	} {
		var m Minutes
		if err := json.Unmarshal([]byte(tc.input), &m); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tc.input, err)
		}
		if m != tc.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tc.input, m, tc.want)
		}
	}
}

func TestMinutesUnmarshalInStruct(t *testing.T) {
	var body struct {
		Minutes Minutes `json:"minutes"`
	}
	if err := json.Unmarshal([]byte(`{"minutes":"15"}`), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.Minutes != 15 {
		t.Errorf("Minutes = %v, want 15", body.Minutes)
	}
}

func TestParseMinutes(t *testing.T) {
	if m, ok := ParseMinutes("15"); !ok || m != 15 {
		t.Errorf(`ParseMinutes("15") = %v, %v`, m, ok)
	}
	if m, ok := ParseMinutes("fifteen"); ok || m != 0 {
		t.Errorf(`ParseMinutes("fifteen") = %v, %v; want 0, false`, m, ok)
	}
	if m, ok := ParseMinutes("NaN"); ok || m != 0 {
		t.Errorf(`ParseMinutes("NaN") = %v, %v; want 0, false`, m, ok)
	}
}

func TestCoerceMinutesStringMatchesNumber(t *testing.T) {
	if CoerceMinutes("15") != CoerceMinutes(15) {
		t.Errorf("string and numeric timeouts differ: %v vs %v", CoerceMinutes("15"), CoerceMinutes(15))
	}
	if CoerceMinutes(json.Number("7")) != 7 {
		t.Errorf("json.Number coercion = %v, want 7", CoerceMinutes(json.Number("7")))
	}
	if CoerceMinutes(struct{}{}) != 0 {
		t.Error("unsupported type should coerce to 0")
	}
}

func TestMinutesDuration(t *testing.T) {
	if got := Minutes(1.5).Duration(); got != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", got)
	}
	if !Minutes(0).IsZero() {
		t.Error("Minutes(0).IsZero() = false")
	}
	for _, m := range []Minutes{MaxMinutes, 1e12, Minutes(math.MaxFloat64)} {
		if got := m.Duration(); got <= 0 || got > time.Duration(math.MaxInt64) {
			t.Errorf("Minutes(%v).Duration() = %v, want a positive saturated duration", m, got)
		}
	}
	if got := CoerceMinutes(1e12); got != MaxMinutes {
		t.Errorf("CoerceMinutes(1e12) = %v, want %v", got, MaxMinutes)
	}
	if got, ok := ParseMinutes("1e12"); got != MaxMinutes || !ok {
		t.Errorf("ParseMinutes(1e12) = %v, %v", got, ok)
	}
}
