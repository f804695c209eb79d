package imagechange

import (
	"image"
	"math/bits"
	"slices"
	"sync"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/dsp/fourier"
)

// #region config
// Config holds image change detection options.
type Config struct {
	Threshold int `yaml:"threshold"`
	Window    int `yaml:"window"`
}

// DefaultConfig returns threshold 5 over a window of 5 distances.
func DefaultConfig() Config {
	return Config{Threshold: 5, Window: 5}
}

const (
	cacheSize = 64
	planeSize = 32
	bandSize  = 8
)

// #endregion config

// #region detector
type clientCache struct {
	image   *image.RGBA
	hash    uint64
	history []int
}

// Detector reports per client whether the screen changed, using the median
// perceptual-hash distance over a rolling window.
type Detector struct {
	mu      sync.RWMutex
	config  Config
	clients map[string]*clientCache
	dct     *fourier.DCT
}

// NewDetector returns a detector. A window below 1 is raised to 1.
func NewDetector(config Config) *Detector {
	config.Window = max(config.Window, 1)
	return &Detector{
		config:  config,
		clients: make(map[string]*clientCache),
		dct:     fourier.NewDCT(planeSize),
	}
}

// Detect downsizes img, compares it with the client's cached frame and
// reports whether the median distance exceeds the threshold. The first
// frame for a client seeds the cache and reports false.
func (d *Detector) Detect(clientID string, img image.Image) bool {
	small := Downscale(img)

	d.mu.Lock()
	defer d.mu.Unlock()
	hash := d.hash(small)
	c, ok := d.clients[clientID]
	if !ok {
		d.clients[clientID] = &clientCache{image: small, hash: hash}
		return false
	}
	dist := Distance(c.hash, hash)
	if len(c.history) >= d.config.Window {
		c.history = slices.Delete(c.history, 0, len(c.history)-d.config.Window+1)
	}
	c.history = append(c.history, dist)
	c.image, c.hash = small, hash
	return median(c.history) > d.config.Threshold
}

// Downscale resizes img to the 64x64 cache size with nearest-neighbour sampling.
func Downscale(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, cacheSize, cacheSize))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Hash returns the 64-bit perceptual hash of img.
func (d *Detector) Hash(img image.Image) uint64 {
	small := Downscale(img)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hash(small)
}

// hash must be called with mu held; the DCT keeps scratch space.
func (d *Detector) hash(small *image.RGBA) uint64 {
	plane := image.NewRGBA(image.Rect(0, 0, planeSize, planeSize))
	draw.ApproxBiLinear.Scale(plane, plane.Bounds(), small, small.Bounds(), draw.Src, nil)

	rows := make([][]float64, planeSize)
	for y := range planeSize {
		row := make([]float64, planeSize)
		for x := range planeSize {
			i := plane.PixOffset(x, y)
			p := plane.Pix[i : i+3 : i+3]
			row[x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
		rows[y] = d.dct.Transform(nil, row)
	}
	col := make([]float64, planeSize)
	coeffs := make([]float64, 0, bandSize*bandSize-1)
	band := make([][]float64, bandSize)
	for x := range bandSize {
		for y := range planeSize {
			col[y] = rows[y][x]
		}
		out := d.dct.Transform(nil, col)
		band[x] = out[:bandSize]
	}
	for y := range bandSize {
		for x := range bandSize {
			if x == 0 && y == 0 {
				continue
			}
			coeffs = append(coeffs, band[x][y])
		}
	}

	sorted := slices.Clone(coeffs)
	slices.Sort(sorted)
	med := sorted[len(sorted)/2]
	var h uint64
	for i, c := range coeffs {
		if c > med {
			h |= 1 << uint(i)
		}
	}
	return h
}

// Distance is the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func median(xs []int) int {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}

// #endregion detector

// #region diagnostics
// MedianDistance returns the current median for a client.
func (d *Detector) MedianDistance(clientID string) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[clientID]
	if !ok || len(c.history) == 0 {
		return 0, false
	}
	return median(c.history), true
}

// DistanceHistory returns a copy of the client's distance window, oldest first.
func (d *Detector) DistanceHistory(clientID string) []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.clients[clientID]; ok {
		return slices.Clone(c.history)
	}
	return nil
}

// CachedImage returns the client's last downscaled frame.
func (d *Detector) CachedImage(clientID string) (*image.RGBA, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[clientID]
	if !ok {
		return nil, false
	}
	return c.image, true
}

// ClearClient forgets everything cached for a client.
func (d *Detector) ClearClient(clientID string) {
	d.mu.Lock()
	delete(d.clients, clientID)
	d.mu.Unlock()
}

func (d *Detector) Threshold() int { return d.config.Threshold }

// SetThreshold changes the change threshold for subsequent frames.
func (d *Detector) SetThreshold(t int) {
	d.mu.Lock()
	d.config.Threshold = t
	d.mu.Unlock()
}

// Stats summarises the detector.
type Stats struct {
	TrackedClients int
	Threshold      int
	Window         int
}

func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{TrackedClients: len(d.clients), Threshold: d.config.Threshold, Window: d.config.Window}
}

// #endregion diagnostics
