package feature

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

// Ingestion errors.
var (
	ErrCrsMismatch     = eris.New("feature: coordinate reference mismatch")
	ErrDuplicateParcel = eris.New("feature: duplicate parcel id")
	ErrNoRegion        = eris.New("feature: region geometry is required")
)

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	fallback []Parcel
	geometry spatial.Geometry
	columns  []Attribute
}

// WithFallback sets the parcel collection substituted when no parcel lies
// inside the region. An explicit fallback is CRS-checked at construction.
func WithFallback(parcels []Parcel) Option {
	return func(o *storeOptions) {
		o.fallback = parcels
	}
}

// WithGeometry sets the geometry backend used for the membership test.
func WithGeometry(g spatial.Geometry) Option {
	return func(o *storeOptions) {
		o.geometry = g
	}
}

// WithColumns declares the raw attribute columns present in the source data.
// When unset, the columns are taken from the union of the parcels' raw keys.
func WithColumns(cols []Attribute) Option {
	return func(o *storeOptions) {
		o.columns = cols
	}
}

// Store holds the validated inputs of one run. Accessors return copies; the
// stored collections are never modified after construction.
type Store struct {
	region       Region
	anchors      []AnchorPoint
	parcels      []Parcel
	columns      []Attribute
	srid         int
	excluded     int
	usedFallback bool
}

// NewStore validates the inputs and applies the region membership filter.
func NewStore(region Region, anchors []AnchorPoint, parcels []Parcel, opts ...Option) (*Store, error) {
	o := storeOptions{geometry: spatial.Planar{}}
	for _, opt := range opts {
		opt(&o)
	}
	log := zap.L().With(zap.String("component", "feature.store"))

	if region.Geometry == nil {
		return nil, ErrNoRegion
	}
	srid := region.Geometry.SRID()

	for _, a := range anchors {
		if a.Point == nil {
			return nil, eris.Errorf("feature: anchor %q has no geometry", a.Name)
		}
		if err := checkSRID(srid, a.Point, "anchor "+a.Name); err != nil {
			return nil, err
		}
	}
	if err := checkParcels(srid, parcels, "parcel"); err != nil {
		return nil, err
	}
	if o.fallback != nil {
		if err := checkParcels(srid, o.fallback, "fallback parcel"); err != nil {
			return nil, err
		}
	}

	eligible := make([]Parcel, 0, len(parcels))
	for _, p := range parcels {
		rep, err := o.geometry.Representative(p.Geometry)
		if err != nil {
			log.Warn("excluding parcel without representative point",
				zap.Int("parcel_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		if !o.geometry.Contains(region.Geometry, rep) {
			log.Debug("parcel outside region", zap.Int("parcel_id", p.ID))
			continue
		}
		eligible = append(eligible, p.Clone())
	}

	s := &Store{
		region:   region,
		anchors:  append([]AnchorPoint(nil), anchors...),
		srid:     srid,
		excluded: len(parcels) - len(eligible),
	}

	if len(eligible) == 0 {
		fallback := o.fallback
		if fallback == nil {
			fallback = DefaultFallbackParcels()
			if err := checkParcels(srid, fallback, "fallback parcel"); err != nil {
				return nil, eris.Wrap(err, "feature: default fallback parcels")
			}
		}
		log.Warn("no parcels are within the region boundary, using fallback parcels",
			zap.String("region", region.Name),
			zap.Int("fallback_parcels", len(fallback)),
		)
		eligible = CloneParcels(fallback)
		s.usedFallback = true
	}
	s.parcels = eligible

	s.columns = o.columns
	if s.columns == nil {
		s.columns = columnsOf(eligible)
	}

	return s, nil
}

// Region returns the study-area boundary.
func (s *Store) Region() Region { return s.region }

// Anchors returns a copy of the anchor points in input order.
func (s *Store) Anchors() []AnchorPoint {
	return append([]AnchorPoint(nil), s.anchors...)
}

// Parcels returns a deep copy of the eligible parcels in input order.
func (s *Store) Parcels() []Parcel { return CloneParcels(s.parcels) }

// Columns returns the declared raw attribute columns.
func (s *Store) Columns() []Attribute { return append([]Attribute(nil), s.columns...) }

// SRID returns the shared coordinate reference of all inputs.
func (s *Store) SRID() int { return s.srid }

// Excluded returns how many input parcels failed the membership test.
func (s *Store) Excluded() int { return s.excluded }

// UsedFallback reports whether the fallback parcels replaced an empty set.
func (s *Store) UsedFallback() bool { return s.usedFallback }

func checkParcels(srid int, parcels []Parcel, kind string) error {
	seen := make(map[int]bool, len(parcels))
	for _, p := range parcels {
		if seen[p.ID] {
			return eris.Wrapf(ErrDuplicateParcel, "%s %d", kind, p.ID)
		}
		seen[p.ID] = true
		if p.Geometry == nil {
			return eris.Errorf("feature: %s %d has no geometry", kind, p.ID)
		}
		if err := checkSRID(srid, p.Geometry, kind); err != nil {
			return eris.Wrapf(err, "%s %d", kind, p.ID)
		}
	}
	return nil
}

func checkSRID(want int, g geom.T, what string) error {
	if got := g.SRID(); got != want {
		return eris.Wrapf(ErrCrsMismatch, "%s has SRID %d, region has %d", what, got, want)
	}
	return nil
}

func columnsOf(parcels []Parcel) []Attribute {
	seen := make(map[Attribute]bool)
	var cols []Attribute
	for _, spec := range RawSchema {
		for _, p := range parcels {
			if _, ok := p.Raw[spec.Name]; ok {
				seen[spec.Name] = true
				cols = append(cols, spec.Name)
				break
			}
		}
	}
	var extra []Attribute
	for _, p := range parcels {
		for k := range p.Raw {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(cols, extra...)
}
