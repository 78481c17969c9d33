package lattice

import (
	"github.com/goccy/go-json"
)

// worldSnapshot is the diagnostic view produced by InspectState.
type worldSnapshot struct {
	Entities   int                 `json:"entities"`
	Components []componentSnapshot `json:"components"`
	Systems    []systemSnapshot    `json:"systems"`
}

type componentSnapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`

	// Bucket storages only: whether fragmentation has crossed the
	// defrag threshold, and the advised pass cost when it has.
	FragmentationDue      bool    `json:"fragmentation_due,omitempty"`
	DefragEstimateSeconds float64 `json:"defrag_estimate_seconds,omitempty"`
}

type systemSnapshot struct {
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Followed int    `json:"followed"`
}

// InspectState returns a JSON description of the world: live entity
// count, per-component populations, and per-system followed counts.
// It is a diagnostic surface, not a serialization format; the output
// cannot be loaded back.
func (w *World) InspectState() ([]byte, error) {
	snap := worldSnapshot{
		Entities:   w.masks.Len(),
		Components: make([]componentSnapshot, 0, len(w.components.storages)),
		Systems:    make([]systemSnapshot, 0, len(w.systems)),
	}

	for _, st := range w.components.storages {
		cs := componentSnapshot{
			Name:  st.componentName(),
			Count: st.size(),
		}
		if m, ok := st.(maintainable); ok {
			cs.DefragEstimateSeconds, cs.FragmentationDue = m.estimateDefragCost()
		}
		snap.Components = append(snap.Components, cs)
	}
	for _, sys := range w.systems {
		snap.Systems = append(snap.Systems, systemSnapshot{
			Name:     sys.name,
			Active:   sys.active,
			Followed: sys.followed.len(),
		})
	}

	return json.Marshal(snap)
}
