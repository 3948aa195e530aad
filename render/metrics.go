// Render-wide counters for final reporting.

package render

import (
	"fmt"
	"sync/atomic"
)

// RenderStats aggregates scheduler and ray statistics for a render.
// Counter fields are updated atomically by worker chunks.
type RenderStats struct {
	Iterations           int   // scheduler iterations
	GenerationIterations int   // iterations that generated new paths
	PathsGenerated       int64 // camera paths started
	RaysTraced           int64 // closest-hit queries
	ShadowRays           int64 // any-hit queries
	PhotonsStored        int64 // photon-map insertions

	KernelDispatches [KernelCount]int64
}

func (s *RenderStats) addRays(n int64)    { atomic.AddInt64(&s.RaysTraced, n) }
func (s *RenderStats) addShadows(n int64) { atomic.AddInt64(&s.ShadowRays, n) }
func (s *RenderStats) addPhotons(n int64) { atomic.AddInt64(&s.PhotonsStored, n) }

// Print displays the aggregated statistics at the end of a render.
func (s *RenderStats) Print() {
	fmt.Println("=== Render Statistics ===")
	fmt.Printf("Scheduler iterations : %d (%d generation)\n", s.Iterations, s.GenerationIterations)
	fmt.Printf("Paths generated      : %d\n", s.PathsGenerated)
	fmt.Printf("Rays traced          : %d closest, %d shadow\n", s.RaysTraced, s.ShadowRays)
	if s.PhotonsStored > 0 {
		fmt.Printf("Photons stored       : %d\n", s.PhotonsStored)
	}
	for i := 1; i < KernelCount; i++ {
		if s.KernelDispatches[i] > 0 {
			fmt.Printf("%-9s dispatches : %d\n", KernelNames[i], s.KernelDispatches[i])
		}
	}
}
