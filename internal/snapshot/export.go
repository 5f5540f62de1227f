// Package snapshot periodically exports walletd's persisted state as JSONL
// to one or more destinations.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/walletd/internal/store"
)

const formatVersion = "1"

// Snapshot is one encoded export. Digest covers the state and alarm
// records only, so two exports of an unchanged store share a digest even
// though their headers differ.
type Snapshot struct {
	Data   []byte
	Digest string
	Taken  time.Time
	States int
	Alarms int
}

type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Digest     string    `json:"digest"`
	StateCount int       `json:"state_count"`
	AlarmCount int       `json:"alarm_count"`
}

type line struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Export reads every state record and alarm from s. Records come out in
// store order: state by key, then alarms by name.
func Export(ctx context.Context, s store.Store) (*Snapshot, error) {
	states, err := s.ListState(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	alarms, err := s.ListAlarms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	for _, rec := range states {
		if err := enc.Encode(line{Type: "state", Data: rec}); err != nil {
			return nil, fmt.Errorf("encode state %s: %w", rec.Key, err)
		}
	}
	for _, a := range alarms {
		if err := enc.Encode(line{Type: "alarm", Data: a}); err != nil {
			return nil, fmt.Errorf("encode alarm %s: %w", a.Name, err)
		}
	}
	sum := sha256.Sum256(body.Bytes())

	snap := &Snapshot{
		Digest: hex.EncodeToString(sum[:]),
		Taken:  time.Now().UTC(),
		States: len(states),
		Alarms: len(alarms),
	}
	h, err := json.Marshal(header{
		Version:    formatVersion,
		Type:       "header",
		Timestamp:  snap.Taken,
		Digest:     snap.Digest,
		StateCount: snap.States,
		AlarmCount: snap.Alarms,
	})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	snap.Data = make([]byte, 0, len(h)+1+body.Len())
	snap.Data = append(append(append(snap.Data, h...), '\n'), body.Bytes()...)
	return snap, nil
}
