// Package service implements the spatial lookup engine: an in-memory incident
// snapshot queried through a staged filter pipeline with a bounded result cache
package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"pulsemap/internal/core/geocell"
	"pulsemap/internal/platform/config"
	perr "pulsemap/internal/platform/errors"
	"pulsemap/internal/platform/metrics"
	incdom "pulsemap/internal/services/incidents/domain"
	dom "pulsemap/internal/services/spatial/domain"
)

// Config tunes the engine
type Config struct {
	CacheSize     int
	CacheTTL      time.Duration
	CellPrecision int
}

// ConfigFromEnv reads SPATIAL_* settings with workable defaults
func ConfigFromEnv(cfg config.Conf) Config {
	v := cfg.Prefix("SPATIAL_")
	return Config{
		CacheSize:     v.MayInt("CACHE_SIZE", 128),
		CacheTTL:      v.MayDuration("CACHE_TTL", 30*time.Second),
		CellPrecision: v.MayInt("CELL_PRECISION", geocell.DefaultPrecision),
	}
}

func (c *Config) normalize() {
	if c.CacheSize <= 0 {
		c.CacheSize = 128
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.CellPrecision <= 0 {
		c.CellPrecision = geocell.DefaultPrecision
	}
}

// snapshot is one immutable generation of the indexed incident set. Readers
// always see a complete generation; Load replaces the pointer wholesale
type snapshot struct {
	hash      string
	incidents []incdom.Incident

	// byCell maps a geocell key to indices into incidents
	byCell map[string][]int

	// noCell indexes records without a geocell; they pass the prefilter
	noCell []int
}

// Engine answers spatial queries against the current snapshot
type Engine struct {
	cfg   Config
	snap  atomic.Pointer[snapshot]
	cache *expirable.LRU[string, dom.Result]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewEngine constructs an Engine with an empty snapshot
func NewEngine(cfg Config) *Engine {
	cfg.normalize()
	return &Engine{
		cfg:   cfg,
		cache: expirable.NewLRU[string, dom.Result](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Load replaces the snapshot with a new incident set. A content hash over
// count and the lastUpdated extremes detects unchanged data: loading the same
// content is a no-op that preserves the cache. On change the snapshot is
// swapped atomically, the cache purged, and geocells re-derived from centroids
// where missing or tagged at a different precision than the engine covers
// boxes at; the returned patches carry those corrections for persistence
func (e *Engine) Load(incidents []incdom.Incident) ([]incdom.SpatialPatch, bool) {
	hash := contentHash(incidents)
	if cur := e.snap.Load(); cur != nil && cur.hash == hash {
		return nil, false
	}

	snap := &snapshot{
		hash:      hash,
		incidents: make([]incdom.Incident, len(incidents)),
		byCell:    make(map[string][]int, len(incidents)),
	}
	copy(snap.incidents, incidents)

	cellPrefix := fmt.Sprintf("p%d:", e.cfg.CellPrecision)

	var patches []incdom.SpatialPatch
	for i := range snap.incidents {
		inc := &snap.incidents[i]
		if !strings.HasPrefix(inc.Geocell, cellPrefix) && validCoords(inc.CentroidLat, inc.CentroidLng) {
			inc.Geocell = geocell.Cell(inc.CentroidLat, inc.CentroidLng, e.cfg.CellPrecision)
			patches = append(patches, incdom.SpatialPatch{
				ID:        inc.ID,
				Geocell:   inc.Geocell,
				RegionIDs: inc.RegionIDs,
			})
		}
		if inc.Geocell == "" {
			snap.noCell = append(snap.noCell, i)
			continue
		}
		snap.byCell[inc.Geocell] = append(snap.byCell[inc.Geocell], i)
	}

	e.snap.Store(snap)
	e.cache.Purge()
	return patches, true
}

// Query runs the staged filter pipeline:
//
//	stage 1: geocell prefilter over the bbox cover (no geocell passes)
//	stage 2: exact centroid-in-bbox comparison
//	stage 3: attribute filters, region then category then source then since
//	         then active-only
//
// Each stage short-circuits on an empty survivor set. Results are cached by a
// key derived from the present filter fields
func (e *Engine) Query(f dom.Filter) (dom.Result, error) {
	if err := validateFilter(f); err != nil {
		return dom.Result{}, err
	}

	key := cacheKey(f)
	if cached, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		metrics.QueryCacheHitsTotal.Inc()
		cached.CacheHit = true
		cached.Elapsed = 0
		return cached, nil
	}
	e.misses.Add(1)
	metrics.QueryCacheMissesTotal.Inc()

	started := time.Now()
	res := e.execute(f)
	res.Elapsed = time.Since(started)
	metrics.QueryDurationMs.Observe(float64(res.Elapsed) / float64(time.Millisecond))

	e.cache.Add(key, res)
	return res, nil
}

// QueryViewport is Query with the box given as corner coordinates
func (e *Engine) QueryViewport(swLat, swLng, neLat, neLng float64, f dom.Filter) (dom.Result, error) {
	f.BBox = &dom.BoundingBox{SWLat: swLat, SWLng: swLng, NELat: neLat, NELng: neLng}
	return e.Query(f)
}

// kmPerDegLat is the fixed degrees-to-kilometres latitude conversion
const kmPerDegLat = 110.574

// kmPerDegLngEquator scales with cos(lat) away from the equator
const kmPerDegLngEquator = 111.320

// QueryNear converts a centre-plus-radius into a bounding box, correcting the
// longitude span by cos(lat), and runs Query
func (e *Engine) QueryNear(lat, lng, radiusKm float64, f dom.Filter) (dom.Result, error) {
	if radiusKm <= 0 {
		return dom.Result{}, perr.WithField(perr.Validationf("radius must be positive"), "radius_km")
	}

	latDelta := radiusKm / kmPerDegLat
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lngDelta := radiusKm / (kmPerDegLngEquator * cosLat)

	f.BBox = &dom.BoundingBox{
		SWLat: lat - latDelta,
		SWLng: lng - lngDelta,
		NELat: lat + latDelta,
		NELng: lng + lngDelta,
	}
	return e.Query(f)
}

// CacheStats returns the cumulative hit and miss counters
func (e *Engine) CacheStats() dom.CacheStats {
	return dom.CacheStats{
		Hits:    e.hits.Load(),
		Misses:  e.misses.Load(),
		Entries: e.cache.Len(),
	}
}

// Size reports how many incidents the current snapshot holds
func (e *Engine) Size() int {
	if snap := e.snap.Load(); snap != nil {
		return len(snap.incidents)
	}
	return 0
}

func (e *Engine) execute(f dom.Filter) dom.Result {
	snap := e.snap.Load()
	if snap == nil || len(snap.incidents) == 0 {
		return dom.Result{Incidents: []incdom.Incident{}}
	}

	var res dom.Result

	// stage 1: geocell prefilter
	candidates := e.prefilter(snap, f.BBox)
	res.Stats.Stage1 = len(candidates)
	if len(candidates) == 0 {
		res.Incidents = []incdom.Incident{}
		return res
	}

	// stage 2: exact bounding box comparison on centroids
	if f.BBox != nil {
		kept := candidates[:0]
		for _, i := range candidates {
			inc := &snap.incidents[i]
			if f.BBox.Contains(inc.CentroidLat, inc.CentroidLng) {
				kept = append(kept, i)
			}
		}
		candidates = kept
	}
	res.Stats.Stage2 = len(candidates)
	if len(candidates) == 0 {
		res.Incidents = []incdom.Incident{}
		return res
	}

	// stage 3: attribute filters
	kept := candidates[:0]
	for _, i := range candidates {
		inc := &snap.incidents[i]
		if f.RegionID != "" && !inc.InRegion(f.RegionID) {
			continue
		}
		if f.Category != "" && inc.Category != f.Category {
			continue
		}
		if f.Source != "" && string(inc.Source) != f.Source {
			continue
		}
		if !f.Since.IsZero() && inc.LastUpdated.Before(f.Since) {
			continue
		}
		if f.ActiveOnly && !inc.Status.Active() {
			continue
		}
		kept = append(kept, i)
	}
	res.Stats.Stage3 = len(kept)
	res.Stats.TotalFound = len(kept)

	out := make([]incdom.Incident, 0, len(kept))
	for _, i := range kept {
		out = append(out, snap.incidents[i])
	}
	res.Incidents = out
	return res
}

// maxCoverCells bounds the cover enumeration; a wider box degrades to a
// linear scan instead of materialising millions of cell keys
const maxCoverCells = 4096

// prefilter returns candidate indices. With a bbox it takes the union of the
// cover cells' buckets plus every record with no geocell; without one, or when
// the box covers more cells than we are willing to enumerate, it returns the
// whole snapshot and leaves the pruning to the exact stage
func (e *Engine) prefilter(snap *snapshot, bbox *dom.BoundingBox) []int {
	if bbox == nil || geocell.CoverSize(bbox.SWLat, bbox.SWLng, bbox.NELat, bbox.NELng, e.cfg.CellPrecision) > maxCoverCells {
		all := make([]int, len(snap.incidents))
		for i := range all {
			all[i] = i
		}
		return all
	}

	cells := geocell.Cover(bbox.SWLat, bbox.SWLng, bbox.NELat, bbox.NELng, e.cfg.CellPrecision)
	out := make([]int, 0, len(snap.noCell))
	for _, c := range cells {
		out = append(out, snap.byCell[c]...)
	}
	out = append(out, snap.noCell...)
	return out
}

func validateFilter(f dom.Filter) error {
	if f.BBox != nil {
		if f.BBox.Inverted() {
			return perr.WithField(perr.Validationf("south-west corner must not exceed north-east corner"), "bbox")
		}
		if !validCoords(f.BBox.SWLat, f.BBox.SWLng) || !validCoords(f.BBox.NELat, f.BBox.NELng) {
			return perr.WithField(perr.Validationf("coordinates out of range"), "bbox")
		}
	}
	if f.Source != "" && !incdom.Source(f.Source).Valid() {
		return perr.WithField(perr.Validationf("unknown source %q", f.Source), "source")
	}
	return nil
}

func validCoords(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// contentHash summarizes a set as count plus lastUpdated extremes
func contentHash(incidents []incdom.Incident) string {
	if len(incidents) == 0 {
		return "0"
	}
	minLU, maxLU := incidents[0].LastUpdated, incidents[0].LastUpdated
	for _, inc := range incidents[1:] {
		if inc.LastUpdated.Before(minLU) {
			minLU = inc.LastUpdated
		}
		if inc.LastUpdated.After(maxLU) {
			maxLU = inc.LastUpdated
		}
	}
	return fmt.Sprintf("%d|%d|%d", len(incidents), minLU.UnixMilli(), maxLU.UnixMilli())
}

// cacheKey builds a deterministic key from the present filter fields
func cacheKey(f dom.Filter) string {
	var sb strings.Builder
	if f.BBox != nil {
		sb.WriteString("bbox=")
		sb.WriteString(coord(f.BBox.SWLat))
		sb.WriteByte(',')
		sb.WriteString(coord(f.BBox.SWLng))
		sb.WriteByte(',')
		sb.WriteString(coord(f.BBox.NELat))
		sb.WriteByte(',')
		sb.WriteString(coord(f.BBox.NELng))
		sb.WriteByte(';')
	}
	if f.RegionID != "" {
		sb.WriteString("region=" + f.RegionID + ";")
	}
	if f.Category != "" {
		sb.WriteString("category=" + f.Category + ";")
	}
	if f.Source != "" {
		sb.WriteString("source=" + f.Source + ";")
	}
	if !f.Since.IsZero() {
		sb.WriteString("since=" + strconv.FormatInt(f.Since.UnixMilli(), 10) + ";")
	}
	if f.ActiveOnly {
		sb.WriteString("active;")
	}
	if sb.Len() == 0 {
		return "all"
	}
	return sb.String()
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
