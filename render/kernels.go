// Stage kernels of the wavefront path tracer.
//
// Every kernel processes one path id drawn from its input window and is free
// of cross-path reads or writes except through queues, atomic counters and
// the film. Suspension of a path is encoded as pushing its id to a queue for
// a later dispatch.

package render

import "math"

// generateKernel starts new camera paths into the INTERSECT queue. With
// compaction the fresh paths take the contiguous low id range; otherwise
// they reuse the ids drawn from the INVALID queue.
func (w *WavefrontPathTracer) generateKernel(invalidIDs []uint32, n uint32, baseSPP, extraSampleID uint32, s ShutterSample) {
	dim := w.scene.Spectrum.Dimension()
	fixed := w.scene.Spectrum.IsFixed()
	lens := w.camera.RequiresLensSampling()
	parallelFor(int(n), func(worker, start, end int) {
		writer := newQueueWriter(w.queue, w.states)
		for d := start; d < end; d++ {
			pixelID := (extraSampleID + uint32(d)) % uint32(w.pixelCount)
			sampleID := baseSPP + (extraSampleID+uint32(d))/uint32(w.pixelCount)

			pathID := uint32(d)
			if !w.cfg.Compact {
				pathID = invalidIDs[d]
			}

			// Commit the sample weight up front so partial renders stay
			// normalized.
			w.film.Accumulate(pixelID, [3]float64{}, 1)

			st := w.sampler.Start(pixelID, sampleID)
			var uFilter, uLens [2]float64
			uFilter[0], uFilter[1] = st.GeneratePixel2D()
			uLens = [2]float64{0.5, 0.5}
			if lens {
				uLens[0], uLens[1] = st.Generate2D()
			}
			uWavelength := 0.0
			if !fixed {
				uWavelength = st.Generate1D()
			}
			w.sampler.Save(pathID, st)

			cs := w.camera.GenerateRay(pixelID, s.Time, uFilter, uLens)
			w.states.WriteRay(pathID, cs.Ray)
			w.states.WriteWavelengthSample(pathID, uWavelength)
			w.states.WriteBeta(pathID, NewSampledSpectrum(dim, s.Weight*cs.Weight))
			w.states.WritePDFBSDF(pathID, DeltaPDF)
			w.states.WriteEtaScale(pathID, 1)
			w.states.WritePixelIndex(pathID, pixelID)
			w.states.WriteDepth(pathID, 0)
			writer.push(KernelIntersect, pathID)
		}
		writer.flush()
	})
	w.Stats.PathsGenerated += int64(n)
}

// intersectKernel traces the stored ray and classifies the path's next
// stage from the hit.
func (w *WavefrontPathTracer) intersectKernel(ids []uint32) {
	geom := w.scene.Geometry
	env := w.scene.LightSampler.Environment()
	parallelFor(len(ids), func(worker, start, end int) {
		writer := newQueueWriter(w.queue, w.states)
		var rays int64
		for d := start; d < end; d++ {
			pathID := ids[d]
			ray := w.states.ReadRay(pathID)
			hit := geom.TraceClosest(ray)
			rays++
			w.states.WriteHit(pathID, hit)
			if hit.Miss() {
				if env {
					writer.push(KernelMiss, pathID)
				} else {
					writer.push(KernelInvalid, pathID)
				}
				continue
			}
			hasSurface, hasLight := geom.InstanceFlags(hit.Instance)
			switch {
			case hasLight:
				writer.push(KernelLight, pathID)
			case hasSurface:
				writer.push(KernelSample, pathID)
			default:
				writer.push(KernelInvalid, pathID)
			}
		}
		writer.flush()
		w.Stats.addRays(rays)
	})
}

// missKernel accumulates the environment contribution of escaped rays.
func (w *WavefrontPathTracer) missKernel(ids []uint32, time float64) {
	spectrum := w.scene.Spectrum
	parallelFor(len(ids), func(worker, start, end int) {
		writer := newQueueWriter(w.queue, w.states)
		for d := start; d < end; d++ {
			pathID := ids[d]
			wi := w.states.ReadRay(pathID).Direction
			_, swl := w.states.ReadSWL(spectrum, pathID)
			eval := w.scene.LightSampler.EvaluateMiss(wi, &swl, time)
			mis := BalanceHeuristic(w.states.ReadPDFBSDF(pathID), eval.PDF)
			Li := w.states.ReadBeta(pathID).MulSpectrum(eval.L).Scale(mis)
			w.film.Accumulate(w.states.ReadPixelIndex(pathID), spectrum.SRGB(&swl, Li), 0)
			writer.push(KernelInvalid, pathID)
		}
		writer.flush()
	})
}

// lightKernel accumulates emission of hit emitters; paths continue to
// next-event estimation when the emitter also carries a surface.
func (w *WavefrontPathTracer) lightKernel(ids []uint32, time float64) {
	spectrum := w.scene.Spectrum
	geom := w.scene.Geometry
	parallelFor(len(ids), func(worker, start, end int) {
		writer := newQueueWriter(w.queue, w.states)
		for d := start; d < end; d++ {
			pathID := ids[d]
			ray := w.states.ReadRay(pathID)
			hit := w.states.ReadHit(pathID)
			_, swl := w.states.ReadSWL(spectrum, pathID)
			it := geom.Interaction(ray, hit)
			eval := w.scene.LightSampler.EvaluateHit(&it, ray.Origin, &swl, time)
			mis := BalanceHeuristic(w.states.ReadPDFBSDF(pathID), eval.PDF)
			Li := w.states.ReadBeta(pathID).MulSpectrum(eval.L).Scale(mis)
			w.film.Accumulate(w.states.ReadPixelIndex(pathID), spectrum.SRGB(&swl, Li), 0)
			if it.HasSurface {
				writer.push(KernelSample, pathID)
			} else {
				writer.push(KernelInvalid, pathID)
			}
		}
		writer.flush()
	})
}

// sampleLightKernel performs next-event estimation: it samples a light,
// traces the shadow ray and stores the light-sample record for the SURFACE
// stage.
func (w *WavefrontPathTracer) sampleLightKernel(ids []uint32, time float64) {
	spectrum := w.scene.Spectrum
	geom := w.scene.Geometry
	useTagSort := w.samples.UseTagSort()
	parallelFor(len(ids), func(worker, start, end int) {
		writer := newQueueWriter(w.queue, w.states)
		var shadows int64
		for d := start; d < end; d++ {
			pathID := ids[d]
			st := w.sampler.Load(pathID)
			uSel := st.Generate1D()
			var uSurf [2]float64
			uSurf[0], uSurf[1] = st.Generate2D()
			w.sampler.Save(pathID, st)

			ray := w.states.ReadRay(pathID)
			hit := w.states.ReadHit(pathID)
			it := geom.Interaction(ray, hit)
			_, swl := w.states.ReadSWL(spectrum, pathID)
			ls := w.scene.LightSampler.Sample(&it, uSel, uSurf, &swl, time)

			occluded := false
			if ls.Eval.PDF > 0 {
				occluded = geom.TraceAny(ls.ShadowRay)
				shadows++
			}
			if occluded || ls.Eval.PDF <= 0 {
				w.samples.WriteEmission(pathID, SampledSpectrum{Dim: spectrum.Dimension()})
				w.samples.WriteWiPDF(pathID, ls.ShadowRay.Direction, 0)
			} else {
				w.samples.WriteEmission(pathID, ls.Eval.L)
				w.samples.WriteWiPDF(pathID, ls.ShadowRay.Direction, ls.Eval.PDF)
			}
			if useTagSort {
				w.samples.WriteSurfaceTag(pathID, it.SurfaceTag)
				w.samples.IncreaseTag(it.SurfaceTag)
			}
			writer.push(KernelSurface, pathID)
		}
		writer.flush()
		w.Stats.addShadows(shadows)
	})
}

// surfaceKernel recreates the closure, resolves direct lighting with MIS,
// samples the BSDF and applies Russian roulette.
func (w *WavefrontPathTracer) surfaceKernel(ids []uint32, time float64) {
	spectrum := w.scene.Spectrum
	geom := w.scene.Geometry
	rrDepth := uint32(w.cfg.RRDepth)
	maxDepth := uint32(w.cfg.MaxDepth)
	parallelFor(len(ids), func(worker, start, end int) {
		writer := newQueueWriter(w.queue, w.states)
		for d := start; d < end; d++ {
			pathID := ids[d]
			st := w.sampler.Load(pathID)
			depth := w.states.ReadDepth(pathID)
			uLobe := st.Generate1D()
			var uDir [2]float64
			uDir[0], uDir[1] = st.Generate2D()
			uRR := 0.0
			if depth+1 >= rrDepth {
				uRR = st.Generate1D()
			}
			w.sampler.Save(pathID, st)

			ray := w.states.ReadRay(pathID)
			hit := w.states.ReadHit(pathID)
			it := geom.Interaction(ray, hit)
			_, swl := w.states.ReadSWL(spectrum, pathID)
			beta := w.states.ReadBeta(pathID)
			wo := ray.Direction.Neg()

			surface := w.scene.SurfaceFor(it.SurfaceTag)
			if surface == nil {
				// Unknown surface tag: treated as absorption.
				writer.push(KernelInvalid, pathID)
				continue
			}
			closure := surface.Closure(&it, &swl, wo, time)

			// Stochastic alpha test.
			if o, ok := closure.Opacity(); ok {
				opacity := clamp(o, 0, 1)
				if uLobe >= opacity {
					// Pass through: continue along the same direction with
					// depth unchanged.
					w.states.WriteRay(pathID, it.SpawnRay(ray.Direction))
					w.states.WritePDFBSDF(pathID, DeltaPDF)
					writer.push(KernelIntersect, pathID)
					continue
				}
				uLobe /= opacity
			}

			if closure.Dispersive() {
				swl.TerminateSecondary()
				w.states.TerminateSecondaryWavelengths(pathID)
			}

			// Direct lighting from the stored light sample.
			lightWi, pdfLight := w.samples.ReadWiPDF(pathID)
			if pdfLight > 0 {
				eval := closure.Evaluate(wo, lightWi, TransportRadiance)
				mis := BalanceHeuristic(pdfLight, eval.PDF)
				Ld := w.samples.ReadEmission(pathID)
				Li := beta.MulSpectrum(eval.F).MulSpectrum(Ld).Scale(mis / pdfLight)
				w.film.Accumulate(w.states.ReadPixelIndex(pathID), spectrum.SRGB(&swl, Li), 0)
			}

			// BSDF sampling.
			ss := closure.Sample(wo, uLobe, uDir, TransportRadiance)
			w.states.WritePDFBSDF(pathID, ss.Eval.PDF)
			nextRay := it.SpawnRay(ss.Wi)
			invPDF := 0.0
			if ss.Eval.PDF > 0 {
				invPDF = 1 / ss.Eval.PDF
			}
			beta = beta.MulSpectrum(ss.Eval.F).Scale(invPDF)

			etaScale := w.states.ReadEtaScale(pathID)
			if eta, ok := closure.Eta(); ok {
				switch ss.Event {
				case EventEnter:
					etaScale *= sqr(eta)
				case EventExit:
					etaScale /= sqr(eta)
				}
				w.states.WriteEtaScale(pathID, etaScale)
			}

			// Prepare the next bounce.
			beta = beta.ZeroIfAnyNaN()
			terminated := false
			if beta.All(func(b float64) bool { return b <= 0 }) {
				terminated = true
			} else if depth+1 >= rrDepth {
				q := math.Max(beta.Max()*etaScale, 0.05)
				if q < w.cfg.RRThreshold {
					if uRR >= q {
						terminated = true
					} else {
						beta = beta.Scale(1 / q)
					}
				}
			}
			if depth+1 >= maxDepth {
				terminated = true
			}

			if terminated {
				writer.push(KernelInvalid, pathID)
				continue
			}
			w.states.WriteDepth(pathID, depth+1)
			w.states.WriteBeta(pathID, beta)
			w.states.WriteRay(pathID, nextRay)
			writer.push(KernelIntersect, pathID)
		}
		writer.flush()
	})
}
