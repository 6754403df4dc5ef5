package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Identity is the subscriber key (fid) supplied by the social client.
// It is accepted as a JSON number or string and kept in its string form.
type Identity string

func (id Identity) String() string { return string(id) }

func (id *Identity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("fid: %w", err)
		}
		*id = Identity(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("fid: %w", err)
	}
	*id = Identity(n.String())
	return nil
}

// Subscriber is the persisted opt-in state of one user.
// Enabled implies Token and URL are both set; disabling keeps them.
type Subscriber struct {
	Token   string    `json:"token"`
	URL     string    `json:"url"`
	Enabled bool      `json:"enabled"`
	AddedAt time.Time `json:"addedAt"`
}

// Deliverable reports whether the record can take part in a broadcast.
func (s Subscriber) Deliverable() bool {
	return s.Enabled && s.Token != "" && s.URL != ""
}

// Subscribers is the whole store snapshot keyed by identity.
type Subscribers map[Identity]Subscriber

// Target is an enabled subscriber selected for delivery.
type Target struct {
	FID Identity
	Subscriber
}

// Enabled returns deliverable subscribers ordered by identity.
func (s Subscribers) Enabled() []Target {
	out := make([]Target, 0, len(s))
	for id, sub := range s {
		if sub.Deliverable() {
			out = append(out, Target{FID: id, Subscriber: sub})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FID < out[j].FID })
	return out
}

// Clone returns a shallow copy safe to mutate.
func (s Subscribers) Clone() Subscribers {
	out := make(Subscribers, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
