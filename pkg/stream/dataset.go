package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/beetlebugorg/zarrview/internal/zarr"
)

// CRS tags the coordinate reference system of a dataset's spatial axes.
type CRS int

const (
	// CRSUnknown means no CRS could be determined.
	CRSUnknown CRS = iota

	// CRSGeographic is WGS-84 longitude/latitude in decimal degrees.
	CRSGeographic

	// CRSProjected is a projected CRS in meters (web mercator and kin).
	CRSProjected
)

func (c CRS) String() string {
	switch c {
	case CRSGeographic:
		return "geographic"
	case CRSProjected:
		return "projected"
	default:
		return "unknown"
	}
}

// MultiscaleKind classifies a dataset's resolution topology.
type MultiscaleKind int

const (
	// SingleArray is a dataset with one array and no resolution levels.
	SingleArray MultiscaleKind = iota

	// TiledPyramid is a slippy-map pyramid: per-level paths, fixed tile
	// size, one web-mercator tile per (level, x, y).
	TiledPyramid

	// UntiledMultilevel has several complete images at different
	// resolutions, each described by a scale/translation transform.
	UntiledMultilevel
)

func (k MultiscaleKind) String() string {
	switch k {
	case TiledPyramid:
		return "tiled-pyramid"
	case UntiledMultilevel:
		return "untiled-multilevel"
	default:
		return "single-array"
	}
}

// ValueTransform converts stored values to physical values.
//
// Float-typed levels are assumed already physically scaled (identity);
// integer-typed levels apply a declared scale/offset.
type ValueTransform struct {
	Scale  float64
	Offset float64
	Fill   float64
}

// Apply transforms one stored value; fill values map to NaN.
func (t ValueTransform) Apply(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	if !math.IsNaN(t.Fill) && v == t.Fill {
		return math.NaN()
	}
	return v*t.Scale + t.Offset
}

func identityTransform(fill float64) ValueTransform {
	return ValueTransform{Scale: 1, Fill: fill}
}

// Level is one resolution level of a dataset.
type Level struct {
	// Path is the level's group path within the store ("" for a
	// single-array dataset).
	Path string

	// Zoom is the web-mercator zoom this level renders at. Parsed from
	// the level path when numeric; pyramids need not be zero-based.
	Zoom int

	// TileSize is the spatial chunk edge for tiled pyramids, 0 otherwise.
	TileSize int

	// ScaleTransform and Translation describe an untiled level's
	// coordinate transform (per-axis), nil otherwise.
	ScaleTransform []float64
	Translation    []float64

	// DeclaredCRS is the CRS string the level's multiscale entry carried,
	// "" when the entry declared none.
	DeclaredCRS string

	// Transform converts this level's stored values to physical values.
	Transform ValueTransform

	arr *zarr.Array
}

// Shape returns the level's per-dimension extents.
func (l *Level) Shape() []int { return l.arr.Shape() }

// ChunkShape returns the level's per-dimension chunk extents.
func (l *Level) ChunkShape() []int { return l.arr.ChunkShape() }

// Source identifies a chunked-array store to resolve.
type Source struct {
	store zarr.Store
	name  string
}

// Name returns the source's display name (its URL or path).
func (s Source) Name() string { return s.name }

func (s Source) String() string { return s.name }

// SourceFromURL builds a Source from an http(s) URL, a file:// URL, or a
// plain filesystem path. A nil client uses http.DefaultClient.
func SourceFromURL(rawURL string, client *http.Client) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, fmt.Errorf("parse source url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return Source{store: zarr.NewHTTPStore(rawURL, client), name: rawURL}, nil
	case "file":
		st, err := zarr.NewLocalStore(u.Path)
		if err != nil {
			return Source{}, err
		}
		return Source{store: st, name: rawURL}, nil
	case "":
		st, err := zarr.NewLocalStore(rawURL)
		if err != nil {
			return Source{}, err
		}
		return Source{store: st, name: rawURL}, nil
	default:
		return Source{}, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

// sourceFromStore wraps an existing store. Used by in-package tests.
func sourceFromStore(st zarr.Store, name string) Source {
	return Source{store: st, name: name}
}

// FormatHint selects the metadata layout to probe.
type FormatHint int

const (
	// FormatAuto tries version-3 metadata first, then falls back to
	// version-2 consolidated metadata.
	FormatAuto FormatHint = iota
	// FormatV2 reads v2 metadata directly and fails if absent.
	FormatV2
	// FormatV3 reads v3 metadata directly and fails if absent.
	FormatV3
)

func (f FormatHint) zarrFormat() zarr.Format {
	switch f {
	case FormatV2:
		return zarr.FormatV2
	case FormatV3:
		return zarr.FormatV3
	default:
		return zarr.FormatAuto
	}
}

// ResolveOptions configures dataset resolution.
type ResolveOptions struct {
	// Format hints at the store's metadata version. FormatAuto probes.
	Format FormatHint

	// CRS overrides CRS inference when set.
	CRS CRS

	// Bounds overrides bounds resolution when set.
	Bounds *orb.Bound

	// Logger receives best-effort warnings (CRS guesses, latitude-order
	// guesses, spanning selectors). Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// DefaultResolveOptions returns resolve options with defaults.
func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{Format: FormatAuto}
}

// Dataset is the immutable description of a resolved dataset.
//
// Produced once by Resolve and consumed by the cache, the controllers
// and the query helpers. Dimension count and per-level chunk shapes
// never change after resolution; only the selector and the viewport
// change over a dataset's lifetime. The lazily-loaded coordinate
// vectors are the only internally mutated state and are mutex-guarded.
type Dataset struct {
	// Source is the resolved source's display name.
	Source string

	// Variable is the array name within each level group.
	Variable string

	// Dimensions is the ordered list of dimension names.
	Dimensions []string

	// Shape and ChunkShape are the extents of the first level.
	Shape      []int
	ChunkShape []int

	// Kind is the dataset's resolution topology.
	Kind MultiscaleKind

	// Levels are ordered as declared by the multiscale metadata.
	Levels []*Level

	// CRS and Bounds describe the spatial reference and extent.
	CRS    CRS
	Bounds orb.Bound

	// LatAscending reports the row-order convention: true when the
	// y-coordinate grows from south to north through the array.
	LatAscending bool

	// Transform is the dataset-level value transform; levels without
	// explicit attributes fall back to it.
	Transform ValueTransform

	xdim, ydim int

	store zarr.Store
	log   zerolog.Logger

	mu     sync.Mutex
	coords map[string][]float64
	grids  map[int][2]int // lazily-computed per-level tile grid
}

// multiscaleDoc mirrors the group-level multiscale attribute conventions:
// tiled pyramids declare per-level paths with a tile size and CRS, untiled
// layered datasets declare per-level scale/translation transforms.
type multiscaleDoc struct {
	Datasets []struct {
		Path                      string `json:"path"`
		PixelsPerTile             int    `json:"pixels_per_tile"`
		CRS                       string `json:"crs"`
		CoordinateTransformations []struct {
			Type        string    `json:"type"`
			Scale       []float64 `json:"scale"`
			Translation []float64 `json:"translation"`
		} `json:"coordinateTransformations"`
	} `json:"datasets"`
}

// Resolve opens a remote chunked-array store and produces its dataset
// description: format version, multiscale topology, CRS, spatial bounds,
// dimension mapping and per-level value transforms.
//
// Single-shot per store; callers share results through a Registry.
//
// Example:
//
//	src, _ := stream.SourceFromURL("https://example.org/climate.zarr", nil)
//	ds, err := stream.Resolve(ctx, src, "tavg", stream.DefaultResolveOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: %s pyramid, %d levels\n", ds.Variable, ds.Kind, len(ds.Levels))
func Resolve(ctx context.Context, src Source, variable string, opts ResolveOptions) (*Dataset, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ds := &Dataset{
		Source:   src.Name(),
		Variable: variable,
		store:    src.store,
		log:      logger,
		coords:   make(map[string][]float64),
		grids:    make(map[int][2]int),
	}

	format := opts.Format.zarrFormat()
	groupAttrs, cm, err := probeMetadata(ctx, src.store, format)
	if err != nil {
		return nil, &ErrMetadataUnavailable{Source: src.Name(), Reason: err.Error()}
	}

	if err := ds.resolveLevels(ctx, groupAttrs, cm, format); err != nil {
		return nil, err
	}
	if err := ds.resolveDimensions(); err != nil {
		return nil, err
	}
	ds.resolveCRS(opts, groupAttrs)
	if err := ds.resolveBounds(ctx, opts, groupAttrs); err != nil {
		return nil, err
	}
	ds.resolveTransforms(groupAttrs)
	ds.resolveLatOrder(ctx)

	return ds, nil
}

// probeMetadata loads group attributes, trying v3 metadata first when no
// hint is given and falling back to v2 consolidated metadata. On an
// explicit hint the other path is never tried.
func probeMetadata(ctx context.Context, store zarr.Store, format zarr.Format) (zarr.Attributes, *zarr.ConsolidatedMetadata, error) {
	loadV2 := func() (zarr.Attributes, *zarr.ConsolidatedMetadata, error) {
		if doc, err := store.Get(ctx, ".zmetadata"); err == nil {
			cm, err := zarr.DecodeConsolidated(doc)
			if err != nil {
				return nil, nil, err
			}
			attrs, err := cm.Attrs("")
			if err != nil {
				return nil, nil, err
			}
			return attrs, cm, nil
		} else if !errors.Is(err, zarr.ErrNotFound) {
			return nil, nil, err
		}
		attrs, err := zarr.OpenGroupAttrs(ctx, store, "", zarr.FormatV2)
		if err != nil {
			return nil, nil, err
		}
		return attrs, nil, nil
	}

	switch format {
	case zarr.FormatV3:
		attrs, err := zarr.OpenGroupAttrs(ctx, store, "", zarr.FormatV3)
		return attrs, nil, err
	case zarr.FormatV2:
		return loadV2()
	default:
		attrs, err := zarr.OpenGroupAttrs(ctx, store, "", zarr.FormatV3)
		if err == nil {
			return attrs, nil, nil
		}
		if !errors.Is(err, zarr.ErrNotFound) {
			return nil, nil, err
		}
		return loadV2()
	}
}

// resolveLevels detects the multiscale topology and opens one array per level.
func (ds *Dataset) resolveLevels(ctx context.Context, attrs zarr.Attributes, cm *zarr.ConsolidatedMetadata, format zarr.Format) error {
	var doc multiscaleDoc
	if raw, ok := attrs["multiscales"]; ok {
		b, err := json.Marshal(raw)
		if err == nil {
			var docs []multiscaleDoc
			if json.Unmarshal(b, &docs) == nil && len(docs) > 0 {
				doc = docs[0]
			}
		}
	}

	openLevel := func(levelPath string) (*zarr.Array, error) {
		arrPath := zarr.JoinPath(levelPath, ds.Variable)
		if cm != nil {
			return zarr.OpenArrayConsolidated(ds.store, arrPath, cm)
		}
		return zarr.OpenArray(ctx, ds.store, arrPath, format)
	}

	if len(doc.Datasets) == 0 {
		arr, err := openLevel("")
		if err != nil {
			return &ErrMetadataUnavailable{Source: ds.Source,
				Reason: fmt.Sprintf("open variable %q: %v", ds.Variable, err)}
		}
		ds.Kind = SingleArray
		ds.Levels = []*Level{{arr: arr}}
		return nil
	}

	tiled := false
	for _, d := range doc.Datasets {
		if d.PixelsPerTile > 0 {
			tiled = true
			break
		}
	}
	if tiled {
		ds.Kind = TiledPyramid
	} else {
		ds.Kind = UntiledMultilevel
	}

	for i, d := range doc.Datasets {
		arr, err := openLevel(d.Path)
		if err != nil {
			return &ErrMetadataUnavailable{Source: ds.Source,
				Reason: fmt.Sprintf("open level %q variable %q: %v", d.Path, ds.Variable, err)}
		}
		lvl := &Level{
			Path:        d.Path,
			Zoom:        levelZoom(d.Path, i),
			TileSize:    d.PixelsPerTile,
			DeclaredCRS: d.CRS,
			arr:         arr,
		}
		for _, tr := range d.CoordinateTransformations {
			switch tr.Type {
			case "scale":
				lvl.ScaleTransform = tr.Scale
			case "translation":
				lvl.Translation = tr.Translation
			}
		}
		ds.Levels = append(ds.Levels, lvl)
	}
	return nil
}

// levelZoom parses the zoom a level path encodes. Pyramids need not be
// zero-based, so the path wins over the positional index.
func levelZoom(levelPath string, index int) int {
	base := path.Base(levelPath)
	if z, err := strconv.Atoi(base); err == nil {
		return z
	}
	return index
}

// resolveDimensions maps dimension names to indices and locates the
// spatial axes. Missing declarations get positional fallbacks with a
// logged guess; those are best-effort and never fatal.
func (ds *Dataset) resolveDimensions() error {
	lvl := ds.Levels[0]
	ds.Shape = lvl.Shape()
	ds.ChunkShape = lvl.ChunkShape()

	dims := lvl.arr.Meta().Dimensions
	rank := len(ds.Shape)
	if len(dims) != rank {
		if rank < 2 {
			return &ErrMetadataUnavailable{Source: ds.Source,
				Reason: fmt.Sprintf("rank-%d variable %q has no usable spatial axes", rank, ds.Variable)}
		}
		dims = make([]string, rank)
		for i := range dims {
			dims[i] = "dim_" + strconv.Itoa(i)
		}
		dims[rank-2], dims[rank-1] = "y", "x"
		ds.log.Warn().Str("variable", ds.Variable).
			Msg("no dimension names declared; assuming trailing (y, x) axes")
	}
	ds.Dimensions = dims

	ds.xdim, ds.ydim = -1, -1
	for i, name := range dims {
		switch strings.ToLower(name) {
		case "x", "lon", "longitude":
			ds.xdim = i
		case "y", "lat", "latitude":
			ds.ydim = i
		}
	}
	if ds.xdim < 0 || ds.ydim < 0 {
		rank := len(dims)
		if rank < 2 {
			return &ErrMetadataUnavailable{Source: ds.Source,
				Reason: "could not locate spatial dimensions"}
		}
		ds.ydim, ds.xdim = rank-2, rank-1
		ds.log.Warn().Strs("dimensions", dims).
			Msg("no recognized spatial dimension names; assuming trailing (y, x) axes")
	}
	return nil
}

// resolveCRS applies the inference order: explicit override, metadata
// declaration, bounds-magnitude heuristic (applied later once bounds are
// known, see inferCRSFromBounds).
func (ds *Dataset) resolveCRS(opts ResolveOptions, attrs zarr.Attributes) {
	if opts.CRS != CRSUnknown {
		ds.CRS = opts.CRS
		return
	}
	declared := ""
	if s, ok := attrs.String("crs"); ok {
		declared = s
	}
	// The tiled-pyramid convention may declare the CRS only inside the
	// multiscale datasets entries.
	for _, lvl := range ds.Levels {
		if declared != "" {
			break
		}
		declared = lvl.DeclaredCRS
	}
	for _, lvl := range ds.Levels {
		if declared != "" {
			break
		}
		if s, ok := lvl.arr.Attrs().String("crs"); ok {
			declared = s
		}
	}
	switch {
	case declared == "":
		ds.CRS = CRSUnknown
	case strings.Contains(declared, "4326") || strings.EqualFold(declared, "WGS84"):
		ds.CRS = CRSGeographic
	case strings.Contains(declared, "3857") || strings.Contains(strings.ToLower(declared), "mercator"):
		ds.CRS = CRSProjected
	default:
		ds.log.Warn().Str("crs", declared).Msg("unrecognized CRS declaration; inferring from bounds")
		ds.CRS = CRSUnknown
	}
}

// inferCRSFromBounds applies the magnitude heuristic: coordinates beyond
// ±360 imply a projected CRS in meters, otherwise geographic degrees.
func inferCRSFromBounds(b orb.Bound) CRS {
	m := math.Max(math.Max(math.Abs(b.Min[0]), math.Abs(b.Max[0])),
		math.Max(math.Abs(b.Min[1]), math.Abs(b.Max[1])))
	if m > 360 {
		return CRSProjected
	}
	return CRSGeographic
}

// webMercatorExtent is the half-width of the EPSG:3857 square in meters.
const webMercatorExtent = 20037508.342789244

// worldBounds is the full extent for a CRS, used as the tiled-pyramid default.
func worldBounds(crs CRS) orb.Bound {
	if crs == CRSProjected {
		const m = webMercatorExtent
		return orb.Bound{Min: orb.Point{-m, -m}, Max: orb.Point{m, m}}
	}
	return orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
}

// resolveBounds applies the resolution order: explicit bounds, per-level
// geo-transform metadata, coordinate-array edge reads, and for tiled
// pyramids only, the full-world default. Untiled data with none of these
// is a hard failure.
func (ds *Dataset) resolveBounds(ctx context.Context, opts ResolveOptions, attrs zarr.Attributes) error {
	defer func() {
		if ds.CRS == CRSUnknown {
			ds.CRS = inferCRSFromBounds(ds.Bounds)
			ds.log.Debug().Stringer("crs", ds.CRS).Msg("inferred CRS from bounds magnitude")
		}
	}()

	if opts.Bounds != nil {
		ds.Bounds = *opts.Bounds
		return nil
	}

	if b, ok := ds.boundsFromTransforms(attrs); ok {
		ds.Bounds = b
		return nil
	}

	if b, ok := ds.boundsFromCoordinates(ctx); ok {
		ds.Bounds = b
		return nil
	}

	if ds.Kind == TiledPyramid {
		crs := ds.CRS
		if crs == CRSUnknown {
			crs = CRSProjected // pyramid convention without a declared CRS
		}
		ds.Bounds = worldBounds(crs)
		ds.log.Debug().Msg("no bounds metadata; assuming full-world extent for tiled pyramid")
		return nil
	}

	return &ErrMetadataUnavailable{Source: ds.Source,
		Reason: "no spatial bounds derivable: supply bounds or add transform/coordinate metadata"}
}

// boundsFromTransforms derives bounds without data reads: a 6-element
// affine geo-transform attribute, or an untiled level's scale/translation.
func (ds *Dataset) boundsFromTransforms(attrs zarr.Attributes) (orb.Bound, bool) {
	lvl := ds.Levels[0]
	shape := lvl.Shape()
	w := float64(shape[ds.xdim])
	h := float64(shape[ds.ydim])

	for _, a := range []zarr.Attributes{lvl.arr.Attrs(), attrs} {
		gt, ok := a.Floats("transform")
		if !ok {
			gt, ok = a.Floats("GeoTransform")
		}
		if ok && len(gt) == 6 {
			x0, dx := gt[0], gt[1]
			y0, dy := gt[3], gt[5]
			x1 := x0 + dx*w
			y1 := y0 + dy*h
			return orb.Bound{
				Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
				Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
			}, true
		}
	}

	if len(lvl.ScaleTransform) > ds.xdim && len(lvl.Translation) > ds.xdim &&
		len(lvl.ScaleTransform) > ds.ydim && len(lvl.Translation) > ds.ydim {
		x0 := lvl.Translation[ds.xdim]
		y0 := lvl.Translation[ds.ydim]
		x1 := x0 + lvl.ScaleTransform[ds.xdim]*w
		y1 := y0 + lvl.ScaleTransform[ds.ydim]*h
		return orb.Bound{
			Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
			Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
		}, true
	}

	return orb.Bound{}, false
}

// boundsFromCoordinates reads the first and last elements of each spatial
// coordinate array: slow path, one small range read per axis.
func (ds *Dataset) boundsFromCoordinates(ctx context.Context) (orb.Bound, bool) {
	edges := func(dim int) (float64, float64, bool) {
		arr, err := ds.openCoordArray(ctx, ds.Dimensions[dim])
		if err != nil {
			return 0, 0, false
		}
		first, last, err := arr.ReadEdges(ctx)
		if err != nil {
			return 0, 0, false
		}
		return first, last, true
	}

	x0, x1, ok := edges(ds.xdim)
	if !ok {
		return orb.Bound{}, false
	}
	y0, y1, ok := edges(ds.ydim)
	if !ok {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}, true
}

// resolveTransforms fills per-level value transforms: float levels are
// identity, integer levels apply declared scale/offset, and a level
// without explicit attributes falls back to the dataset-level transform.
func (ds *Dataset) resolveTransforms(groupAttrs zarr.Attributes) {
	dsScale, dsHasScale := groupAttrs.Float("scale_factor")
	dsOffset, _ := groupAttrs.Float("add_offset")

	for _, lvl := range ds.Levels {
		meta := lvl.arr.Meta()
		attrs := lvl.arr.Attrs()

		fill := meta.FillValue
		if f, ok := attrs.Float("_FillValue"); ok {
			fill = f
		}

		if meta.DType.IsFloat() {
			lvl.Transform = identityTransform(fill)
			continue
		}

		scale, hasScale := attrs.Float("scale_factor")
		offset, _ := attrs.Float("add_offset")
		if !hasScale {
			if dsHasScale {
				scale, offset = dsScale, dsOffset
			} else {
				scale, offset = 1, 0
			}
		}
		lvl.Transform = ValueTransform{Scale: scale, Offset: offset, Fill: fill}
	}

	ds.Transform = ds.Levels[0].Transform
}

// resolveLatOrder detects the row-order convention from the y-coordinate
// direction. Unreadable coordinates default to descending with a logged
// guess; never fatal.
func (ds *Dataset) resolveLatOrder(ctx context.Context) {
	arr, err := ds.openCoordArray(ctx, ds.Dimensions[ds.ydim])
	if err == nil {
		if first, last, rerr := arr.ReadEdges(ctx); rerr == nil {
			ds.LatAscending = last > first
			return
		}
	}
	ds.LatAscending = false
	ds.log.Debug().Msg("no readable y coordinate; assuming descending latitude order")
}

func (ds *Dataset) openCoordArray(ctx context.Context, name string) (*zarr.Array, error) {
	lvl := ds.Levels[0]
	return zarr.OpenArray(ctx, ds.store, zarr.JoinPath(lvl.Path, name), zarr.FormatAuto)
}

// DimIndex returns the index of the named dimension.
func (ds *Dataset) DimIndex(name string) (int, bool) {
	for i, d := range ds.Dimensions {
		if d == name {
			return i, true
		}
	}
	return 0, false
}

// XDim and YDim return the indices of the spatial axes.
func (ds *Dataset) XDim() int { return ds.xdim }
func (ds *Dataset) YDim() int { return ds.ydim }

// tilePixels returns the pixel dimensions of one extracted tile at a
// level, which match the level's spatial chunk extents.
func (ds *Dataset) tilePixels(level int) (w, h int) {
	chunkShape := ds.Levels[level].ChunkShape()
	return chunkShape[ds.xdim], chunkShape[ds.ydim]
}

func (ds *Dataset) isSpatialDim(name string) bool {
	i, ok := ds.DimIndex(name)
	return ok && (i == ds.xdim || i == ds.ydim)
}

// Coordinates returns the coordinate vector for a dimension, loading and
// caching it on first use. This is a suspension point.
func (ds *Dataset) Coordinates(ctx context.Context, name string) ([]float64, error) {
	ds.mu.Lock()
	if c, ok := ds.coords[name]; ok {
		ds.mu.Unlock()
		return c, nil
	}
	ds.mu.Unlock()

	arr, err := ds.openCoordArray(ctx, name)
	if err != nil {
		return nil, err
	}
	vals, err := arr.ReadVector(ctx)
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	ds.coords[name] = vals
	ds.mu.Unlock()
	return vals, nil
}

// LevelGrid returns the tile grid (nx, ny) of a level, computed lazily.
//
// For tiled pyramids this is the spatial shape divided by the tile size;
// untiled levels are a single 1x1 grid.
func (ds *Dataset) LevelGrid(level int) (nx, ny int) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if g, ok := ds.grids[level]; ok {
		return g[0], g[1]
	}

	lvl := ds.Levels[level]
	nx, ny = 1, 1
	if lvl.TileSize > 0 {
		shape := lvl.Shape()
		nx = (shape[ds.xdim] + lvl.TileSize - 1) / lvl.TileSize
		ny = (shape[ds.ydim] + lvl.TileSize - 1) / lvl.TileSize
	}
	ds.grids[level] = [2]int{nx, ny}
	return nx, ny
}

// TileBounds returns the geographic bounds of one tile key within the
// dataset extent.
func (ds *Dataset) TileBounds(key Key) orb.Bound {
	nx, ny := ds.LevelGrid(key.Level)
	w := (ds.Bounds.Max[0] - ds.Bounds.Min[0]) / float64(nx)
	h := (ds.Bounds.Max[1] - ds.Bounds.Min[1]) / float64(ny)
	// Row 0 is the northern edge.
	minX := ds.Bounds.Min[0] + w*float64(key.X)
	maxY := ds.Bounds.Max[1] - h*float64(key.Y)
	return orb.Bound{
		Min: orb.Point{minX, maxY - h},
		Max: orb.Point{minX + w, maxY},
	}
}

// Level returns the level at index i.
func (ds *Dataset) Level(i int) *Level { return ds.Levels[i] }
