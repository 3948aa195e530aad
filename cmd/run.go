// The run command: load or pick a scene, build the requested integrator,
// render, report statistics and optionally dump the image.

package cmd

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/render-sim/render-sim/render"
	"github.com/render-sim/render-sim/render/scenedesc"
)

var (
	sceneName  string
	scenePath  string
	outPath    string
	integrator string
	spp        int
	maxDepth   int
	rrDepth    int
	rrThresh   float64
	seed       int64

	stateCount int
	gathering  bool
	compact    bool
	tagSort    bool

	photonPerIter int
	initialRadius float64
	sharedRadius  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Render a scene",
	Run: func(cmd *cobra.Command, args []string) {
		spec, err := loadSpec()
		if err != nil {
			logrus.Fatalf("Failed to load scene: %v", err)
		}
		applyOverrides(cmd, spec)

		scene, camera, err := spec.Build()
		if err != nil {
			logrus.Fatalf("Failed to build scene %q: %v", spec.Name, err)
		}
		if err := runIntegrator(spec.Settings, scene, camera); err != nil {
			logrus.Fatalf("Render failed: %v", err)
		}
		if outPath != "" {
			if err := writePPM(outPath, camera.Film()); err != nil {
				logrus.Fatalf("Failed to write image: %v", err)
			}
			logrus.Infof("Image written to %s", outPath)
		}
		stats := camera.Film().Stats()
		logrus.Infof("Mean luminance %.4f, max %.4f, %d NaN pixels",
			stats.MeanLuminance, stats.MaxLuminance, stats.NaNPixels)
	},
}

func loadSpec() (*scenedesc.SceneSpec, error) {
	if scenePath != "" {
		return scenedesc.LoadSceneSpec(scenePath)
	}
	return scenedesc.Builtin(sceneName)
}

// applyOverrides lets explicitly set flags win over the scene's settings.
func applyOverrides(cmd *cobra.Command, spec *scenedesc.SceneSpec) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("integrator") {
		spec.Settings.Integrator = integrator
	}
	if set("spp") {
		spec.Camera.SPP = spp
		spec.Shutter = nil
	}
	if set("depth") {
		spec.Settings.MaxDepth = maxDepth
	}
	if set("rr-depth") {
		spec.Settings.RRDepth = rrDepth
	}
	if set("rr-threshold") {
		spec.Settings.RRThreshold = rrThresh
	}
	if set("seed") {
		spec.Settings.Seed = seed
	}
	if set("state-count") {
		spec.Settings.StateCount = stateCount
	}
	if set("gathering") {
		spec.Settings.Gathering = gathering
	}
	if set("compact") {
		spec.Settings.Compact = compact
	}
	if set("tag-sort") {
		spec.Settings.TagSort = tagSort
	}
	if set("photon-per-iter") {
		spec.Settings.PhotonsPerIteration = photonPerIter
	}
	if set("initial-radius") {
		spec.Settings.InitialRadius = initialRadius
	}
	if set("shared-radius") {
		spec.Settings.SharedRadius = sharedRadius
	}
}

func runIntegrator(settings scenedesc.SettingsSpec, scene *render.Scene, camera render.Camera) error {
	base := render.Config{
		MaxDepth:    settings.MaxDepth,
		RRDepth:     settings.RRDepth,
		RRThreshold: settings.RRThreshold,
		Seed:        settings.Seed,
	}
	sampler := render.NewPCGSampler(settings.Seed)
	switch strings.ToLower(settings.Integrator) {
	case "", "wavefront":
		it := render.NewWavefrontPathTracer(scene, sampler, render.WavefrontConfig{
			Config:     base,
			StateCount: settings.StateCount,
			Gathering:  settings.Gathering,
			Compact:    settings.Compact,
			UseTagSort: settings.TagSort,
		})
		if err := it.Render(camera); err != nil {
			return err
		}
		it.Stats.Print()
	case "megakernel":
		it := render.NewMegakernelPathTracer(scene, sampler, render.MegakernelConfig{Config: base})
		if err := it.Render(camera); err != nil {
			return err
		}
		it.Stats.Print()
	case "photon":
		it := render.NewPhotonMapper(scene, sampler, render.PhotonMapperConfig{
			Config:              base,
			PhotonsPerIteration: settings.PhotonsPerIteration,
			InitialRadius:       settings.InitialRadius,
			SharedRadius:        settings.SharedRadius,
		})
		if err := it.Render(camera); err != nil {
			return err
		}
		it.Stats.Print()
	default:
		return fmt.Errorf("unknown integrator %q", settings.Integrator)
	}
	return nil
}

// writePPM dumps the developed film as a binary PPM with a gamma of 2.2.
// Proper image I/O and tone mapping live outside the engine.
func writePPM(path string, film *render.Film) error {
	w, h := film.Resolution()
	img := film.Develop()
	var b strings.Builder
	fmt.Fprintf(&b, "P6\n%d %d\n255\n", w, h)
	buf := make([]byte, 0, w*h*3)
	for _, px := range img {
		for c := 0; c < 3; c++ {
			v := math.Pow(math.Max(px[c], 0), 1/2.2)
			buf = append(buf, byte(math.Min(v, 1)*255+0.5))
		}
	}
	return os.WriteFile(path, append([]byte(b.String()), buf...), 0o644)
}

func init() {
	registerRunFlags()
	rootCmd.AddCommand(runCmd)
}

func registerRunFlags() {
	runCmd.Flags().StringVar(&sceneName, "scene", "cornell", "Built-in scene name (see 'scenes')")
	runCmd.Flags().StringVar(&scenePath, "scene-file", "", "Path to a YAML scene description (overrides --scene)")
	runCmd.Flags().StringVar(&outPath, "out", "", "Output PPM path (omit to skip image output)")
	runCmd.Flags().StringVar(&integrator, "integrator", "wavefront", "Integrator (wavefront, megakernel, photon)")
	runCmd.Flags().IntVar(&spp, "spp", 0, "Samples per pixel override")
	runCmd.Flags().IntVar(&maxDepth, "depth", 10, "Maximum path depth")
	runCmd.Flags().IntVar(&rrDepth, "rr-depth", 0, "First depth at which Russian roulette may fire")
	runCmd.Flags().Float64Var(&rrThresh, "rr-threshold", 0.95, "Russian roulette threshold")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Sampler seed")
	runCmd.Flags().IntVar(&stateCount, "state-count", 1<<18, "In-flight path capacity (wavefront)")
	runCmd.Flags().BoolVar(&gathering, "gathering", true, "Use the gathered queue layout (wavefront)")
	runCmd.Flags().BoolVar(&compact, "compact", true, "Compact path state before generation (wavefront)")
	runCmd.Flags().BoolVar(&tagSort, "tag-sort", true, "Sort the SURFACE queue by material tag (wavefront)")
	runCmd.Flags().IntVar(&photonPerIter, "photon-per-iter", 200000, "Photons per progressive iteration (photon)")
	runCmd.Flags().Float64Var(&initialRadius, "initial-radius", -200, "Initial gather radius; <0 means world/-n (photon)")
	runCmd.Flags().BoolVar(&sharedRadius, "shared-radius", true, "Share one radius across the film (photon)")
}
