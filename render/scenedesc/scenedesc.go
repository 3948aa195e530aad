// Package scenedesc loads YAML scene descriptions and builds the runtime
// scene objects the integrators consume. Full scene-graph parsing and
// plugin loading live upstream; this package covers the primitive set the
// engine ships with.
package scenedesc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/render-sim/render-sim/render"
)

// FilmSpec is the output resolution.
type FilmSpec struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CameraSpec describes a pinhole or thin-lens camera.
type CameraSpec struct {
	Position      [3]float64 `yaml:"position"`
	LookAt        [3]float64 `yaml:"look_at"`
	Up            [3]float64 `yaml:"up"`
	Fov           float64    `yaml:"fov"`
	SPP           int        `yaml:"spp"`
	LensRadius    float64    `yaml:"lens_radius"`
	FocusDistance float64    `yaml:"focus_distance"`
}

// SurfaceSpec describes one material; Type selects the closure.
type SurfaceSpec struct {
	Name       string     `yaml:"name"`
	Type       string     `yaml:"type"` // lambert | mirror | dielectric
	Albedo     [3]float64 `yaml:"albedo"`
	IOR        float64    `yaml:"ior"`
	Dispersion float64    `yaml:"dispersion"`
	// Opacity in (0, 1) wraps the surface for stochastic alpha testing.
	Opacity float64 `yaml:"opacity"`
}

// InstanceSpec places a shape; Surface references a SurfaceSpec by name and
// a non-zero Emission binds an area light.
type InstanceSpec struct {
	Shape    string     `yaml:"shape"` // quad | sphere
	Origin   [3]float64 `yaml:"origin"`
	EdgeU    [3]float64 `yaml:"edge_u"`
	EdgeV    [3]float64 `yaml:"edge_v"`
	Center   [3]float64 `yaml:"center"`
	Radius   float64    `yaml:"radius"`
	Surface  string     `yaml:"surface"`
	Emission [3]float64 `yaml:"emission"`
}

// EnvironmentSpec is the optional uniform environment light.
type EnvironmentSpec struct {
	Radiance [3]float64 `yaml:"radiance"`
}

// ShutterSpec is one (time, weight, spp) exposure point.
type ShutterSpec struct {
	Time   float64 `yaml:"time"`
	Weight float64 `yaml:"weight"`
	SPP    int     `yaml:"spp"`
}

// SettingsSpec carries the integrator parameters.
type SettingsSpec struct {
	Integrator  string  `yaml:"integrator"` // wavefront | megakernel | photon
	MaxDepth    int     `yaml:"max_depth"`
	RRDepth     int     `yaml:"rr_depth"`
	RRThreshold float64 `yaml:"rr_threshold"`
	Seed        int64   `yaml:"seed"`

	StateCount int  `yaml:"state_count"`
	Gathering  bool `yaml:"gathering"`
	Compact    bool `yaml:"compact"`
	TagSort    bool `yaml:"tag_sort"`

	PhotonsPerIteration int     `yaml:"photons_per_iter"`
	InitialRadius       float64 `yaml:"initial_radius"`
	SharedRadius        bool    `yaml:"shared_radius"`
}

// SceneSpec is a complete YAML scene description.
type SceneSpec struct {
	Name        string           `yaml:"name"`
	Film        FilmSpec         `yaml:"film"`
	Camera      CameraSpec       `yaml:"camera"`
	Spectral    bool             `yaml:"spectral"`
	Surfaces    []SurfaceSpec    `yaml:"surfaces"`
	Instances   []InstanceSpec   `yaml:"instances"`
	Environment *EnvironmentSpec `yaml:"environment"`
	Shutter     []ShutterSpec    `yaml:"shutter"`
	Settings    SettingsSpec     `yaml:"settings"`
}

// LoadSceneSpec reads and validates a YAML scene description.
func LoadSceneSpec(path string) (*SceneSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene spec: %w", err)
	}
	var spec SceneSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse scene spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("scene spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the parts Build would otherwise panic on.
func (s *SceneSpec) Validate() error {
	if s.Film.Width <= 0 || s.Film.Height <= 0 {
		return fmt.Errorf("film resolution %dx%d is invalid", s.Film.Width, s.Film.Height)
	}
	names := map[string]bool{}
	for _, surf := range s.Surfaces {
		switch surf.Type {
		case "lambert", "mirror", "dielectric":
		default:
			return fmt.Errorf("surface %q has unknown type %q", surf.Name, surf.Type)
		}
		if names[surf.Name] {
			return fmt.Errorf("duplicate surface name %q", surf.Name)
		}
		names[surf.Name] = true
	}
	for i, inst := range s.Instances {
		if inst.Shape != "quad" && inst.Shape != "sphere" {
			return fmt.Errorf("instance %d has unknown shape %q", i, inst.Shape)
		}
		if inst.Surface != "" && !names[inst.Surface] {
			return fmt.Errorf("instance %d references unknown surface %q", i, inst.Surface)
		}
	}
	return nil
}

func vec(v [3]float64) render.Vec3 { return render.Vec3{X: v[0], Y: v[1], Z: v[2]} }

func buildSurface(spec SurfaceSpec) render.Surface {
	var base render.Surface
	switch spec.Type {
	case "mirror":
		base = &render.MirrorSurface{Albedo: spec.Albedo}
	case "dielectric":
		ior := spec.IOR
		if ior == 0 {
			ior = 1.5
		}
		base = &render.DielectricSurface{IOR: ior, Dispersion: spec.Dispersion}
	default:
		base = &render.LambertSurface{Albedo: spec.Albedo}
	}
	if spec.Opacity > 0 && spec.Opacity < 1 {
		return &render.OpacitySurface{Base: base, Alpha: spec.Opacity}
	}
	return base
}

// Build constructs the runtime scene and camera from the description.
func (s *SceneSpec) Build() (*render.Scene, render.Camera, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}

	tags := map[string]uint32{}
	surfaces := make([]render.Surface, len(s.Surfaces))
	for i, spec := range s.Surfaces {
		surfaces[i] = buildSurface(spec)
		tags[spec.Name] = uint32(i)
	}

	var instances []render.Instance
	var lights []render.Light
	for _, spec := range s.Instances {
		var shape render.Shape
		if spec.Shape == "sphere" {
			shape = render.Sphere{Center: vec(spec.Center), Radius: spec.Radius}
		} else {
			shape = render.Quad{Origin: vec(spec.Origin), EdgeU: vec(spec.EdgeU), EdgeV: vec(spec.EdgeV)}
		}
		inst := render.Instance{Shape: shape, LightIndex: -1}
		if spec.Surface != "" {
			inst.SurfaceTag = tags[spec.Surface]
			inst.HasSurface = true
		}
		if spec.Emission != ([3]float64{}) {
			inst.LightIndex = int32(len(lights))
			lights = append(lights, &render.AreaLight{Shape: shape, Radiance: spec.Emission})
		}
		instances = append(instances, inst)
	}

	var env *render.EnvironmentLight
	if s.Environment != nil {
		env = &render.EnvironmentLight{Radiance: s.Environment.Radiance}
	}

	var spectrum render.Spectrum = render.RGBSpectrum{}
	if s.Spectral {
		spectrum = render.HeroWavelengthSpectrum{}
	}

	scene := &render.Scene{
		Geometry:     render.NewSceneGeometry(instances, env != nil),
		Surfaces:     surfaces,
		LightSampler: &render.UniformLightSampler{Lights: lights, Env: env},
		Spectrum:     spectrum,
	}

	film := render.NewFilm(s.Film.Width, s.Film.Height)
	spp := s.Camera.SPP
	if spp <= 0 {
		spp = 16
	}
	up := vec(s.Camera.Up)
	if up.IsZero() {
		up = render.Vec3{Y: 1}
	}
	fov := s.Camera.Fov
	if fov == 0 {
		fov = 40
	}
	camera := render.NewPinholeCamera(film, vec(s.Camera.Position), vec(s.Camera.LookAt), up, fov, spp)
	camera.LensRadius = s.Camera.LensRadius
	camera.FocusDistance = s.Camera.FocusDistance
	if len(s.Shutter) > 0 {
		shutter := make([]render.ShutterSample, len(s.Shutter))
		total := 0
		for i, sh := range s.Shutter {
			w := sh.Weight
			if w == 0 {
				w = 1
			}
			shutter[i] = render.ShutterSample{Time: sh.Time, Weight: w, SPP: sh.SPP}
			total += sh.SPP
		}
		if total == 0 {
			return nil, nil, fmt.Errorf("shutter samples carry zero spp")
		}
		camera.SetShutter(shutter)
	}
	return scene, camera, nil
}
