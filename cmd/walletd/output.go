package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/walletd/internal/inactivity"
	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/ui"
)

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printState(w io.Writer, st *model.AppState) {
	fmt.Fprintf(w, "Lock:          %s\n", ui.RenderLockState(st.Unlocked))
	fmt.Fprintf(w, "Timeout:       %s\n", formatTimeout(st.TimeoutMinutes))
	fmt.Fprintf(w, "Timer armed:   %t\n", st.TimerArmed)
	if st.LastActiveAt != nil {
		fmt.Fprintf(w, "Last active:   %s\n", st.LastActiveAt.Local().Format("2006-01-02 15:04:05"))
	}
	if st.WaitingForUnlock > 0 {
		fmt.Fprintf(w, "Waiting:       %d\n", st.WaitingForUnlock)
	}
	if st.ApprovalID != "" {
		fmt.Fprintf(w, "Approval:      %s\n", st.ApprovalID)
	}
	if st.CurrentPopupID != 0 {
		fmt.Fprintf(w, "Popup:         %d\n", st.CurrentPopupID)
	}
	if len(st.BrowserEnvironment) > 0 {
		fmt.Fprintf(w, "Browser:       %s on %s\n", st.BrowserEnvironment["browser"], st.BrowserEnvironment["os"])
	}
	printPollingTokens(w, model.PollingTokens{
		model.PollingPopup:        st.PopupGasPollTokens,
		model.PollingNotification: st.NotificationGasPollTokens,
		model.PollingFullScreen:   st.FullScreenGasPollTokens,
	})
}

func printTimer(w io.Writer, st *inactivity.State) {
	mech := "volatile"
	if st.Persistent {
		mech = "persistent"
	}
	fmt.Fprintf(w, "Timeout:  %s\n", formatTimeout(st.TimeoutMinutes))
	fmt.Fprintf(w, "Armed:    %t (%s)\n", st.Armed, mech)
	if st.ArmedAt != nil && st.Armed {
		expires := st.ArmedAt.Add(st.TimeoutMinutes.Duration())
		fmt.Fprintf(w, "Expires:  %s\n", expires.Local().Format("15:04:05"))
	}
}

func printPollingTokens(w io.Writer, tokens model.PollingTokens) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, cat := range model.PollingCategories {
		list := tokens[cat]
		value := ui.RenderMuted("-")
		if len(list) > 0 {
			value = strings.Join(list, ", ")
		}
		fmt.Fprintf(tw, "%s:\t%s\n", cat, value)
	}
	tw.Flush()
}

func printApprovals(w io.Writer, reqs []model.ApprovalRequest) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "no pending approvals")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tORIGIN\tCREATED")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Type, r.Origin, r.CreatedAt.Local().Format("15:04:05"))
	}
	tw.Flush()
}

func printBridgeStatuses(w io.Writer, statuses map[string]model.StatusResponse) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, "no bridge statuses")
		return
	}
	hashes := make([]string, 0, len(statuses))
	for h := range statuses {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SRC TX\tSTATUS\tBRIDGE\tROUTE\tDEST TX")
	for _, h := range hashes {
		st := statuses[h]
		route := fmt.Sprintf("%d", st.SrcChain.ChainID)
		dest := ""
		if st.DestChain != nil {
			route += fmt.Sprintf(" -> %d", st.DestChain.ChainID)
			dest = st.DestChain.TxHash
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h, ui.RenderBridgeStatus(string(st.Status)), st.Bridge, route, dest)
	}
	tw.Flush()
}

func printEvent(w io.Writer, topic string, payload []byte, at time.Time) {
	fmt.Fprintf(w, "%s %s %s\n",
		ui.RenderMuted(at.Local().Format("15:04:05")),
		ui.RenderAccent(topic),
		strings.TrimSpace(string(payload)))
}

func formatTimeout(m model.Minutes) string {
	if m.IsZero() {
		return ui.RenderMuted("disabled")
	}
	return m.String() + " min"
}
