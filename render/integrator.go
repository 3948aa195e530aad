// Integrator contract and the shared progressive-render scaffold.

package render

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config carries the light-transport parameters common to all integrators.
type Config struct {
	MaxDepth    int     // maximum path length, >= 1
	RRDepth     int     // first depth at which Russian roulette may fire
	RRThreshold float64 // clamped to [0.05, 1]
	Seed        int64
}

// Normalize clamps the configuration into its documented ranges.
func (c *Config) Normalize() {
	if c.MaxDepth < 1 {
		c.MaxDepth = 1
	}
	if c.RRDepth < 0 {
		c.RRDepth = 0
	}
	c.RRThreshold = clamp(c.RRThreshold, 0.05, 1)
}

// Integrator renders a camera's view of a scene into the camera's film.
type Integrator interface {
	// Render executes rendering for a single camera. Unrecoverable
	// conditions surface as an error before any output is produced;
	// recoverable ones are absorbed per path.
	Render(camera Camera) error
}

// checkLighting implements the shared no-lights contract: warn and skip.
func checkLighting(scene *Scene) error {
	if !scene.Geometry.HasLighting() {
		logrus.Warn("No lights in scene. Rendering aborted.")
		return ErrNoLights
	}
	return nil
}

// logRenderTime logs the wall-clock duration of a finished render.
func logRenderTime(name string, start time.Time) {
	logrus.Infof("%s finished in %v.", name, time.Since(start).Round(time.Millisecond))
}
