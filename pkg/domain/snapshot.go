package domain

import "time"

// Snapshot is an immutable view of every variable of a session.
type Snapshot struct {
	SessionID          string     `json:"session_id"`
	Sequence           uint64     `json:"sequence"`
	IsVariablesLoading bool       `json:"isVariablesLoading"`
	Values             []Variable `json:"values"`
	TimeRange          TimeRange  `json:"time_range"`
	EmittedAt          time.Time  `json:"emitted_at"`
}

// NewSnapshot deep-copies vars into a snapshot. isVariablesLoading is true
// iff any variable is pending or loading.
func NewSnapshot(sessionID string, sequence uint64, tr TimeRange, vars []*Variable) *Snapshot {
	snap := &Snapshot{
		SessionID: sessionID,
		Sequence:  sequence,
		Values:    make([]Variable, 0, len(vars)),
		TimeRange: tr,
		EmittedAt: time.Now(),
	}
	for _, v := range vars {
		if v.State == StatePending || v.State == StateLoading {
			snap.IsVariablesLoading = true
		}
		snap.Values = append(snap.Values, *v.Clone())
	}
	return snap
}

// Variable returns the snapshot entry for name.
func (s *Snapshot) Variable(name string) (*Variable, bool) {
	for i := range s.Values {
		if s.Values[i].Config.Name == name {
			return &s.Values[i], true
		}
	}
	return nil, false
}

// Clone returns a structurally independent copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.Values = make([]Variable, 0, len(s.Values))
	for i := range s.Values {
		out.Values = append(out.Values, *s.Values[i].Clone())
	}
	return &out
}
