package signals

import (
	"fmt"
	"time"
)

// #region detector-interface
// Detector turns a detection context into zero or more signals.
// Detectors never fail: finding nothing yields an empty Detection.
type Detector interface {
	Name() string
	Priority() int // 0-100, higher runs first
	CanProcess(dc *Context) bool
	Detect(dc *Context) Detection
}

// #endregion detector-interface

// #region region-scoring
// scoreRegion applies the shared threshold rule to a region score: a region
// counts as detected when score > threshold, and confidence mirrors the score
// capped at 1. A miss reports 1-score as the certainty of the absence.
func scoreRegion(score, threshold float64) (bool, float64) {
	if score > threshold {
		return true, min(score, 1)
	}
	return false, 1 - score
}

func maxConfidence(sigs []Signal) float64 {
	best := 0.0
	for _, s := range sigs {
		if s.Confidence > best {
			best = s.Confidence
		}
	}
	return best
}

// #endregion region-scoring

// #region hp-bar
// HPBarDetector finds green or red horizontal bars in the top quarter.
type HPBarDetector struct {
	GreenThreshold uint8
	RedThreshold   uint8
	Threshold      float64
}

// NewHPBarDetector returns the detector with default colour thresholds.
func NewHPBarDetector() *HPBarDetector {
	return &HPBarDetector{GreenThreshold: 150, RedThreshold: 150, Threshold: 0.3}
}

func (d *HPBarDetector) Name() string              { return "HPBarDetector" }
func (d *HPBarDetector) Priority() int             { return 90 }
func (d *HPBarDetector) CanProcess(_ *Context) bool { return true }

// Score rates a region by its longest bar run and overall bar-pixel density.
func (d *HPBarDetector) Score(dc *Context, r Region) float64 {
	if r.Width <= 0 || r.Area() <= 0 {
		return 0
	}
	maxRun, barPixels := 0, 0
	for y := r.Y; y < r.Y+r.Height; y++ {
		green, red := 0, 0
		for x := r.X; x < r.X+r.Width; x++ {
			pr, pg, pb, ok := dc.Pixel(x, y)
			if !ok {
				continue
			}
			R, G, B := int(pr), int(pg), int(pb)
			switch {
			case pg > d.GreenThreshold && G > R+30 && G > B+30:
				green++
				red = 0
				barPixels++
			case pr > d.RedThreshold && R > G+30 && R > B+30:
				red++
				green = 0
				barPixels++
			default:
				maxRun = max(maxRun, green, red)
				green, red = 0, 0
			}
		}
		maxRun = max(maxRun, green, red)
	}
	length := min(float64(maxRun)/float64(r.Width), 1)
	density := min(float64(barPixels)/float64(r.Area()), 1)
	return (length + density) / 2
}

func (d *HPBarDetector) Detect(dc *Context) Detection {
	start := time.Now()
	region := TopQuarter(dc.Width, dc.Height)
	found, conf := scoreRegion(d.Score(dc, region), d.Threshold)
	det := Detection{Confidence: conf, Reasoning: fmt.Sprintf("HP bar detection in region %+v", region)}
	if found {
		det.Signals = []Signal{{Type: SignalHPBar, Confidence: conf, Location: &region}}
	}
	det.Elapsed = time.Since(start)
	return det
}

// #endregion hp-bar

// #region menu
// MenuDetector looks for bordered boxes in the bottom quarter.
type MenuDetector struct {
	MinBoxes int
}

// NewMenuDetector returns the detector requiring two boxes.
func NewMenuDetector() *MenuDetector {
	return &MenuDetector{MinBoxes: 2}
}

func (d *MenuDetector) Name() string              { return "MenuDetector" }
func (d *MenuDetector) Priority() int             { return 80 }
func (d *MenuDetector) CanProcess(_ *Context) bool { return true }

// Score returns found boxes divided by the required count.
func (d *MenuDetector) Score(dc *Context, r Region) float64 {
	boxes := 0
	for y := r.Y; y < r.Y+r.Height; y += 8 {
		for x := r.X; x < r.X+r.Width; x += 16 {
			if d.isBox(dc, x, y, 32, 16) {
				boxes++
			}
		}
	}
	return float64(boxes) / float64(max(d.MinBoxes, 1))
}

func (d *MenuDetector) isBox(dc *Context, x, y, w, h int) bool {
	endX := min(x+w, dc.Width)
	endY := min(y+h, dc.Height)
	border, checked := 0, 0
	probe := func(px, py int) {
		b, ok := dc.Brightness(px, py)
		if !ok {
			return
		}
		checked++
		if b < 50 || b > 200 {
			border++
		}
	}
	for cx := x; cx < endX; cx++ {
		probe(cx, y)
		probe(cx, endY-1)
	}
	for cy := y; cy < endY; cy++ {
		probe(x, cy)
		probe(endX-1, cy)
	}
	return checked > 0 && float64(border)/float64(checked) > 0.3
}

func (d *MenuDetector) Detect(dc *Context) Detection {
	start := time.Now()
	region := BottomQuarter(dc.Width, dc.Height)
	found, conf := scoreRegion(d.Score(dc, region), 1.0)
	det := Detection{Confidence: conf, Reasoning: fmt.Sprintf("menu detection in region %+v", region)}
	if found {
		det.Signals = []Signal{{Type: SignalBattleMenu, Confidence: conf, Location: &region}}
	}
	det.Elapsed = time.Since(start)
	return det
}

// #endregion menu

// #region text
// TextDetector measures high-contrast pixel density in several regions.
type TextDetector struct {
	ContrastThreshold int
	MinDensity        float64
}

// NewTextDetector returns the detector with contrast 100 and density 0.15.
func NewTextDetector() *TextDetector {
	return &TextDetector{ContrastThreshold: 100, MinDensity: 0.15}
}

// WithContrast returns a copy using a different contrast threshold.
func (d *TextDetector) WithContrast(threshold int) *TextDetector {
	cp := *d
	cp.ContrastThreshold = threshold
	return &cp
}

func (d *TextDetector) Name() string              { return "TextDetector" }
func (d *TextDetector) Priority() int             { return 70 }
func (d *TextDetector) CanProcess(_ *Context) bool { return true }

// Score is the fraction of sampled pixels (step 2) with a high-contrast neighbour.
func (d *TextDetector) Score(dc *Context, r Region) float64 {
	samples := r.Area() / 4
	if samples <= 0 {
		return 0
	}
	hits := 0
	for y := r.Y; y < r.Y+r.Height; y += 2 {
		for x := r.X; x < r.X+r.Width; x += 2 {
			if d.hasContrast(dc, x, y) {
				hits++
			}
		}
	}
	return float64(hits) / float64(samples)
}

func (d *TextDetector) hasContrast(dc *Context, x, y int) bool {
	b, ok := dc.Brightness(x, y)
	if !ok {
		return false
	}
	for dy := 0; dy <= 1; dy++ {
		for dx := 0; dx <= 1; dx++ {
			nb, ok := dc.Brightness(x+dx, y+dy)
			if ok && absInt(b-nb) > d.ContrastThreshold {
				return true
			}
		}
	}
	return false
}

func (d *TextDetector) Detect(dc *Context) Detection {
	start := time.Now()
	regions := []Region{
		FullImage(dc.Width, dc.Height),
		BottomQuarter(dc.Width, dc.Height),
		CenterHalf(dc.Width, dc.Height),
	}
	var sigs []Signal
	for _, r := range regions {
		if found, conf := scoreRegion(d.Score(dc, r), d.MinDensity); found {
			loc := r
			sigs = append(sigs, Signal{Type: SignalTextBlock, Confidence: conf, Location: &loc})
		}
	}
	return Detection{
		Signals:    sigs,
		Confidence: maxConfidence(sigs),
		Reasoning:  fmt.Sprintf("text detection found %d regions", len(sigs)),
		Elapsed:    time.Since(start),
	}
}

// #endregion text

// #region location
// LocationDetector classifies indoor landmarks by colour statistics.
// It stands down once battle UI has been seen.
type LocationDetector struct{}

// NewLocationDetector returns a LocationDetector.
func NewLocationDetector() *LocationDetector { return &LocationDetector{} }

func (d *LocationDetector) Name() string  { return "LocationDetector" }
func (d *LocationDetector) Priority() int { return 50 }

func (d *LocationDetector) CanProcess(dc *Context) bool {
	return !dc.HasSignal(SignalHPBar) && !dc.HasSignal(SignalBattleMenu)
}

func (d *LocationDetector) Detect(dc *Context) Detection {
	start := time.Now()
	var sigs []Signal
	if d.pokemonCenter(dc) {
		sigs = append(sigs, Signal{Type: SignalPokemonCenter, Confidence: 0.8})
	}
	if d.gym(dc) {
		sigs = append(sigs, Signal{Type: SignalGym, Confidence: 0.7})
	}
	if d.cave(dc) {
		sigs = append(sigs, Signal{Type: SignalCave, Confidence: 0.75})
	}
	return Detection{
		Signals:    sigs,
		Confidence: maxConfidence(sigs),
		Reasoning:  fmt.Sprintf("location detection found %d signals", len(sigs)),
		Elapsed:    time.Since(start),
	}
}

func (d *LocationDetector) pokemonCenter(dc *Context) bool {
	pink := 0
	for y := 0; y < dc.Height; y += 4 {
		for x := 0; x < dc.Width; x += 4 {
			r, g, b, ok := dc.Pixel(x, y)
			if ok && r > 180 && g < 150 && b > 100 && r > b {
				pink++
			}
		}
	}
	return pink > dc.Width*dc.Height/2000
}

func (d *LocationDetector) gym(dc *Context) bool {
	edges := 0
	for y := 0; y < dc.Height; y += 8 {
		for x := 0; x < dc.Width; x += 8 {
			if b, ok := dc.Brightness(x, y); ok && (b < 50 || b > 200) {
				edges++
			}
		}
	}
	if edges <= 5 {
		return false
	}
	uniform := 0
	for y := 0; y < dc.Height; y += 16 {
		for x := 0; x < dc.Width; x += 16 {
			if uniformLighting(dc, x, y, 16, 16) {
				uniform++
			}
		}
	}
	return uniform > dc.Width*dc.Height/4000
}

func (d *LocationDetector) cave(dc *Context) bool {
	dark := 0
	for y := 0; y < dc.Height; y += 4 {
		for x := 0; x < dc.Width; x += 4 {
			if b, ok := dc.Brightness(x, y); ok && b < 80 {
				dark++
			}
		}
	}
	return dark > dc.Width*dc.Height/1000
}

// uniformLighting reports whether the summed-channel variance of a block is low.
func uniformLighting(dc *Context, x, y, w, h int) bool {
	total, n := 0, 0
	for cy := y; cy < min(y+h, dc.Height); cy++ {
		for cx := x; cx < min(x+w, dc.Width); cx++ {
			r, g, b, ok := dc.Pixel(cx, cy)
			if ok {
				total += int(r) + int(g) + int(b)
				n++
			}
		}
	}
	if n == 0 {
		return false
	}
	avg := total / n
	variance := 0
	for cy := y; cy < min(y+h, dc.Height); cy++ {
		for cx := x; cx < min(x+w, dc.Width); cx++ {
			r, g, b, ok := dc.Pixel(cx, cy)
			if ok {
				diff := absInt(avg - (int(r) + int(g) + int(b)))
				variance += diff * diff
			}
		}
	}
	return variance/n < 2000
}

// #endregion location

// #region environment
// EnvironmentDetector finds grass and water by dominant colour.
type EnvironmentDetector struct {
	GrassThreshold uint8
	WaterThreshold uint8
}

// NewEnvironmentDetector returns the detector with default colour thresholds.
func NewEnvironmentDetector() *EnvironmentDetector {
	return &EnvironmentDetector{GrassThreshold: 100, WaterThreshold: 120}
}

func (d *EnvironmentDetector) Name() string              { return "EnvironmentDetector" }
func (d *EnvironmentDetector) Priority() int             { return 40 }
func (d *EnvironmentDetector) CanProcess(_ *Context) bool { return true }

func (d *EnvironmentDetector) Detect(dc *Context) Detection {
	start := time.Now()
	var sigs []Signal
	if d.tallGrass(dc) {
		sigs = append(sigs, Signal{Type: SignalTallGrass, Confidence: 0.7})
	}
	if d.water(dc) {
		sigs = append(sigs, Signal{Type: SignalWater, Confidence: 0.8})
	}
	return Detection{
		Signals:    sigs,
		Confidence: maxConfidence(sigs),
		Reasoning:  fmt.Sprintf("environment detection found %d signals", len(sigs)),
		Elapsed:    time.Since(start),
	}
}

func (d *EnvironmentDetector) tallGrass(dc *Context) bool {
	grass := 0
	for y := dc.Height / 2; y < dc.Height; y += 3 {
		for x := 0; x < dc.Width; x += 3 {
			r, g, b, ok := dc.Pixel(x, y)
			if ok && g > d.GrassThreshold && int(g) > int(r)+20 && int(g) > int(b)+20 {
				grass++
			}
		}
	}
	return grass > dc.Width*dc.Height/2000
}

func (d *EnvironmentDetector) water(dc *Context) bool {
	water := 0
	for y := 0; y < dc.Height; y += 3 {
		for x := 0; x < dc.Width; x += 3 {
			r, g, b, ok := dc.Pixel(x, y)
			if ok && b > d.WaterThreshold && int(b) > int(r)+30 && int(b) > int(g)+15 {
				water++
			}
		}
	}
	return water > dc.Width*dc.Height/1500
}

// #endregion environment

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
