// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Command spritedump renders the frames of a sprite animation through
// the CPU execution path and writes depth-map previews, plus the packed
// atlas, as WebP images. It exists to inspect the billboard depth pass
// without a GPU.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
	"honnef.co/go/color"

	"honnef.co/go/jorangar"
	"honnef.co/go/jorangar/animation"
	"honnef.co/go/jorangar/engine/wgpu_engine/shaders/cpu"
	"honnef.co/go/jorangar/renderer"
	"honnef.co/go/jorangar/sprite"
)

type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

type stderrLogger struct{}

func (stderrLogger) Infof(format string, args ...any)  { fmt.Fprintf(os.Stderr, format+"\n", args...) }
func (stderrLogger) Errorf(format string, args ...any) { fmt.Fprintf(os.Stderr, format+"\n", args...) }

type nopLogger struct{}

func (nopLogger) Infof(format string, args ...any)  {}
func (nopLogger) Errorf(format string, args ...any) {}

func main() {
	configFile := flag.String("config", "", "Path to config.json file")
	sprFile := flag.String("spr", "", "Path to SPR sprite file")
	actFile := flag.String("act", "", "Path to ACT action file")
	sheetFile := flag.String("sheet", "", "Path to a TGA or PNG sprite sheet (instead of -spr/-act)")
	outputDir := flag.String("output", "", "Output directory (default: renders)")
	size := flag.Int("size", 0, "Render target size in pixels (default: 256)")
	scale := flag.Int("scale", 0, "Integer upscale factor for previews (default: 1)")
	action := flag.Int("action", 0, "Action index to render")
	direction := flag.Int("direction", 0, "Sprite direction 0..7")
	frames := flag.Int("frames", 0, "Render only the first N frames")
	warped := flag.Bool("warped", false, "Use the curvature-warped depth output")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: NumCPU)")
	background := flag.String("background", "", `Background color for previews, e.g. "color(srgb 0.2 0.2 0.25)" (default: transparent)`)
	quiet := flag.Bool("quiet", false, "Suppress progress output")
	flag.Parse()

	var log Logger = stderrLogger{}
	if *quiet {
		log = nopLogger{}
	}

	var cfg Config
	if *configFile != "" {
		var err error
		cfg, err = Load(*configFile)
		if err != nil {
			log.Errorf("Error loading config: %v", err)
			os.Exit(1)
		}
	}
	cfg.Resolve(Flags{
		SPR:         *sprFile,
		ACT:         *actFile,
		Sheet:       *sheetFile,
		OutputDir:   *outputDir,
		Size:        *size,
		Scale:       *scale,
		Action:      *action,
		Direction:   *direction,
		Frames:      *frames,
		WarpedDepth: *warped,
		Workers:     *workers,
		Background:  *background,
	})
	if err := cfg.Validate(); err != nil {
		log.Errorf("%v", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg Config, log Logger) error {
	data, err := loadData(cfg)
	if err != nil {
		return err
	}

	atlas := sprite.NewAtlas()
	finish := data.RegisterSprites(atlas)
	if err := atlas.Build(); err != nil {
		return err
	}
	if err := finish(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	atlasPath := filepath.Join(cfg.OutputDir, "atlas.webp")
	if err := writeWebP(atlasPath, atlas.Image()); err != nil {
		return fmt.Errorf("atlas preview: %w", err)
	}

	background, err := backgroundPixel(cfg)
	if err != nil {
		return err
	}

	camera, headDirection, totalFrames := setupCamera(cfg, data)
	if totalFrames == 0 {
		return fmt.Errorf("action %d has no frames", cfg.Action)
	}
	frameCount := totalFrames
	if cfg.Frames > 0 && cfg.Frames < frameCount {
		frameCount = cfg.Frames
	}

	log.Infof("Frames: %d, Workers: %d", frameCount, cfg.Workers)
	log.Infof("Output: %s", cfg.OutputDir)

	start := time.Now()
	errs := renderFrames(cfg, data, atlas, camera, headDirection, frameCount, totalFrames, background, log)
	log.Infof("Done in %.1fs", time.Since(start).Seconds())
	log.Infof("Rendered: %d/%d", frameCount-len(errs), frameCount)

	if len(errs) > 0 {
		for _, err := range errs {
			log.Errorf("  %v", err)
		}
		return fmt.Errorf("%d of %d frames failed", len(errs), frameCount)
	}
	return nil
}

func loadData(cfg Config) (*animation.Data, error) {
	if cfg.Sheet != "" {
		img, err := sprite.LoadSheet(cfg.Sheet)
		if err != nil {
			return nil, err
		}
		return sheetData(img)
	}

	spr, err := sprite.Load(cfg.SPR)
	if err != nil {
		return nil, err
	}
	actions, err := animation.LoadActions(cfg.ACT)
	if err != nil {
		return nil, err
	}
	return animation.NewData([]animation.Pair{{Sprite: spr, Actions: actions}}, animation.EntityMonster)
}

// sheetData wraps a standalone sheet image in a single-frame action so
// that it flows through the same pipeline as SPR/ACT input.
func sheetData(img *image.NRGBA) (*animation.Data, error) {
	spr := &sprite.Sprite{Images: []*image.NRGBA{img}}
	actions := &animation.Actions{
		Actions: []animation.Action{{
			Motions: []animation.Motion{{
				SpriteClips: []animation.SpriteClip{{
					Zoom: mgl32.Vec2{1, 1},
				}},
			}},
		}},
		Delays: []float32{animation.DefaultDelay},
	}
	return animation.NewData([]animation.Pair{{Sprite: spr, Actions: actions}}, animation.EntityMonster)
}

// setupCamera frames the entity from the front and converts the
// requested sprite direction into the head direction the animation
// layer expects. It returns the selected animation's frame count.
func setupCamera(cfg Config, data *animation.Data) (*renderer.Camera, int, int) {
	aa := cfg.Action*8 + cfg.Direction
	anim := &data.Animations[aa%len(data.Animations)]
	if len(anim.Frames) == 0 {
		return nil, 0, 0
	}

	// Corner space spans two units of billboard height.
	extent := float32(anim.Frames[0].Size.Y) * 0.7 / 10 * 2
	camera := renderer.NewCamera(uint32(cfg.Size), uint32(cfg.Size), mgl32.DegToRad(45), extent/10, extent*10)
	camera.LookAt(
		mgl32.Vec3{0, extent / 2, extent * 1.5},
		mgl32.Vec3{0, extent / 2, 0},
	)

	headDirection := (cfg.Direction - camera.Direction() + 8) % 8
	return camera, headDirection, len(anim.Frames)
}

// backgroundPixel parses the configured background color into sRGB
// bytes for the preview images.
func backgroundPixel(cfg Config) (*[4]uint8, error) {
	if cfg.Background == "" {
		return nil, nil
	}
	col, ok := color.Parse(cfg.Background)
	if !ok {
		return nil, fmt.Errorf("config: cannot parse background color %q", cfg.Background)
	}
	cc := col.Convert(color.SRGB)
	var px [4]uint8
	for i, v := range cc.Values {
		px[i] = uint8(min(max(v, 0), 1)*255 + 0.5)
	}
	return &px, nil
}

func renderFrames(
	cfg Config,
	data *animation.Data,
	atlas *sprite.Atlas,
	camera *renderer.Camera,
	headDirection int,
	frameCount int,
	totalFrames int,
	background *[4]uint8,
	log Logger,
) []error {
	var processed atomic.Int64
	start := time.Now()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := processed.Load()
				if p > 0 {
					rate := float64(p) / time.Since(start).Seconds()
					log.Infof("  [%d/%d] %.1f frames/sec", p, frameCount, rate)
				}
			}
		}
	}()

	errors := make([]error, frameCount)
	jobs := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Renderers are not safe for concurrent use; every worker
			// owns one.
			rend := jorangar.NewRenderer(nil, jorangar.RendererOptions{
				UseCPU:      true,
				WarpedDepth: cfg.WarpedDepth,
			})
			for idx := range jobs {
				errors[idx] = renderFrame(rend, cfg, data, atlas, camera, headDirection, totalFrames, background, idx)
				processed.Add(1)
			}
		}()
	}
	for i := 0; i < frameCount; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(done)

	var failed []error
	for _, err := range errors {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}

func renderFrame(
	rend *jorangar.Renderer,
	cfg Config,
	data *animation.Data,
	atlas *sprite.Atlas,
	camera *renderer.Camera,
	headDirection int,
	totalFrames int,
	background *[4]uint8,
	index int,
) error {
	frame := &jorangar.Frame{
		Camera: camera,
		Atlas:  atlas.Image(),
		Entities: []jorangar.Entity{{
			Data:     data,
			Position: mgl32.Vec3{0, 0, 0},
			State: animation.State{
				Action: cfg.Action,
				// Duration mode maps time to the frame index directly.
				Time:     uint32(index),
				Duration: uint32(totalFrames),
			},
			HeadDirection: headDirection,
		}},
	}
	params := &renderer.RenderParams{
		Width:       uint32(cfg.Size),
		Height:      uint32(cfg.Size),
		NearPlane:   camera.NearPlane(),
		SampleCount: 1,
	}

	proxy := rend.RenderDepth(nil, frame, params, nil, nil)
	depth, ok := rend.Engine().CPUDepthTarget(proxy)
	if !ok {
		return fmt.Errorf("frame %d: no depth target materialized", index)
	}

	img := depthImage(depth, background)
	if cfg.Scale > 1 {
		img = upscale(img, cfg.Scale)
	}
	path := filepath.Join(cfg.OutputDir, fmt.Sprintf("%d_%d_%03d.webp", cfg.Action, cfg.Direction, index))
	if err := writeWebP(path, img); err != nil {
		return fmt.Errorf("frame %d: %w", index, err)
	}
	return nil
}

// depthImage maps the covered depth range to grayscale, near bright and
// far dark. Uncovered pixels take the background color, or stay
// transparent without one.
func depthImage(depth *cpu.CPUDepthTarget, background *[4]uint8) *image.NRGBA {
	lo, hi := float32(1), float32(0)
	for _, d := range depth.Depth {
		if d < 1 {
			lo = min(lo, d)
			hi = max(hi, d)
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, int(depth.Width), int(depth.Height)))
	for i, d := range depth.Depth {
		if d >= 1 {
			if background != nil {
				copy(img.Pix[i*4:i*4+4], background[:])
			}
			continue
		}
		gray := uint8(255)
		if hi > lo {
			gray = uint8(255 - (d-lo)/(hi-lo)*255)
		}
		img.Pix[i*4+0] = gray
		img.Pix[i*4+1] = gray
		img.Pix[i*4+2] = gray
		img.Pix[i*4+3] = 255
	}
	return img
}

func upscale(img *image.NRGBA, scale int) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func writeWebP(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := nativewebp.Encode(f, img, nil); err != nil {
		return fmt.Errorf("WebP encode %s: %w", path, err)
	}
	return nil
}
