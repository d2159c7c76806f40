// Package telemetry tracks the most recent headset-reported metrics:
// signal quality, the eSense indices and the hardware band powers.
package telemetry

import (
	"sync"
	"time"

	"github.com/StoicSim/brainwave/internal/thinkgear"
)

// Provider exposes the current telemetry snapshot.
type Provider interface {
	Get() *Telemetry
}

// Telemetry is the latest value of each headset metric. Fields are nil until
// the headset has reported them at least once; the headset emits the eSense
// and band-power fields roughly once per second while raw samples arrive at
// the full sample rate.
type Telemetry struct {
	Timestamp  time.Time                   `json:"timestamp"`
	PoorSignal *uint8                      `json:"poorSignal,omitempty"` // 0-200, 200 = no skin contact
	Attention  *uint8                      `json:"attention,omitempty"`  // 0-100
	Meditation *uint8                      `json:"meditation,omitempty"` // 0-100
	BandPowers *[thinkgear.NumBands]uint32 `json:"bandPowers,omitempty"`
}

// State merges decoded packets into a current-values snapshot. Safe for one
// writer and any number of readers.
type State struct {
	mu      sync.RWMutex
	current Telemetry
}

func NewState() *State {
	return &State{}
}

// Update merges the fields present in pkt into the snapshot.
func (s *State) Update(pkt thinkgear.SensorPacket, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := false
	if pkt.PoorSignal != nil {
		v := *pkt.PoorSignal
		s.current.PoorSignal = &v
		updated = true
	}
	if pkt.Attention != nil {
		v := *pkt.Attention
		s.current.Attention = &v
		updated = true
	}
	if pkt.Meditation != nil {
		v := *pkt.Meditation
		s.current.Meditation = &v
		updated = true
	}
	if pkt.BandPowers != nil {
		v := *pkt.BandPowers
		s.current.BandPowers = &v
		updated = true
	}

	if updated {
		s.current.Timestamp = now
	}
}

// Get returns a copy of the current snapshot.
func (s *State) Get() *Telemetry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.current
	if s.current.PoorSignal != nil {
		v := *s.current.PoorSignal
		out.PoorSignal = &v
	}
	if s.current.Attention != nil {
		v := *s.current.Attention
		out.Attention = &v
	}
	if s.current.Meditation != nil {
		v := *s.current.Meditation
		out.Meditation = &v
	}
	if s.current.BandPowers != nil {
		v := *s.current.BandPowers
		out.BandPowers = &v
	}
	return &out
}
