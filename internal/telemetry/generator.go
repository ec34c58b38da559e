package telemetry

import (
	"math/rand/v2"
	"time"
)

// Source is the randomness behind a Generator. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// State is the simulated flight state of one stream.
type State struct {
	MissionID int64
	Altitude  float64
	Velocity  float64
	Fuel      float64
	Status    Status
}

// InitialState is a fuelled vehicle on the pad.
func InitialState(missionID int64) State {
	return State{
		MissionID: missionID,
		Fuel:      100,
		Status:    StatusCountdown,
	}
}

// Generator advances a State by one tick.
type Generator struct {
	src Source
}

func NewGenerator(src Source) *Generator {
	return &Generator{src: src}
}

// NewSeededGenerator returns a Generator driven by a PCG source seeded with seed.
func NewSeededGenerator(seed uint64) *Generator {
	return NewGenerator(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.src.Float64()
}

// Advance applies one tick to st and returns the new state together with the
// sample describing it, stamped with now.
func (g *Generator) Advance(st State, now time.Time) (State, Sample) {
	st.Altitude += g.uniform(80, 200)
	st.Velocity += g.uniform(30, 80)
	st.Fuel -= g.uniform(0.1, 0.5)
	if st.Fuel < 0 {
		st.Fuel = 0
	}
	if st.Altitude > OrbitAltitude && st.Status == StatusCountdown {
		st.Status = StatusInOrbit
	}

	return st, Sample{
		Timestamp: now.UTC(),
		MissionID: st.MissionID,
		Altitude:  st.Altitude,
		Velocity:  st.Velocity,
		Fuel:      st.Fuel,
		Status:    st.Status,
	}
}
