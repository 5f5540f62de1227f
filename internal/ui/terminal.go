package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout gets ANSI colors.
//
// WALLETD_COLOR=always|never overrides everything else. Otherwise NO_COLOR
// (https://no-color.org), CLICOLOR_FORCE and CLICOLOR apply in that order,
// and the default is to color only a terminal.
func ShouldUseColor() bool {
	return colorFromEnv(os.Getenv, func() bool { return term.IsTerminal(int(os.Stdout.Fd())) })
}

func colorFromEnv(getenv func(string) string, isTTY func() bool) bool {
	switch strings.ToLower(strings.TrimSpace(getenv("WALLETD_COLOR"))) {
	case "always":
		return true
	case "never":
		return false
	}
	if getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false
	}
	return isTTY()
}
