// Package catalog seeds the store with operator satellites, catalog objects
// and their orbit states from a YAML file or from three-line TLE text.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/conjunct/internal/adapters/repository"
	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/risk"
	"github.com/okian/conjunct/pkg/logger"
	"github.com/okian/conjunct/pkg/metrics"
)

const (
	// TLE-derived states carry low base confidence.
	tleConfidence = 0.4

	defaultObjectType = "PAYLOAD"
	defaultFrame      = "GCRS"
	defaultConfidence = 0.5
)

// namespace roots the deterministic ids of TLE-derived records, so that
// reloading the same file replaces rather than duplicates.
var namespace = uuid.MustParse("0f1c5a52-6f0e-4c0b-9d53-4c1f0d2b7a41")

// Summary counts what one load wrote.
type Summary struct {
	Sources      int
	Satellites   int
	SpaceObjects int
	OrbitStates  int
	TleRecords   int
	Skipped      int
}

// Add accumulates another summary.
func (s *Summary) Add(o Summary) {
	s.Sources += o.Sources
	s.Satellites += o.Satellites
	s.SpaceObjects += o.SpaceObjects
	s.OrbitStates += o.OrbitStates
	s.TleRecords += o.TleRecords
	s.Skipped += o.Skipped
}

// Loader writes seed data into a catalog store.
type Loader struct {
	store repository.Catalog
	log   logger.Logger
	now   func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l logger.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithClock overrides the ingestion time source.
func WithClock(now func() time.Time) Option {
	return func(ld *Loader) {
		if now != nil {
			ld.now = now
		}
	}
}

// NewLoader creates a loader over store.
func NewLoader(store repository.Catalog, opts ...Option) *Loader {
	l := &Loader{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("catalog")
	}
	return l
}

// Load reads the optional YAML seed and the optional TLE file. Empty paths
// are skipped.
func (l *Loader) Load(ctx context.Context, catalogPath, tlePath string) (Summary, error) {
	var total Summary
	if catalogPath != "" {
		s, err := l.LoadYAML(ctx, catalogPath)
		if err != nil {
			return total, err
		}
		total.Add(s)
	}
	if tlePath != "" {
		s, err := l.LoadTLEFile(ctx, tlePath, "")
		if err != nil {
			return total, err
		}
		total.Add(s)
	}
	l.log.Info(ctx, "catalog loaded",
		logger.Int("satellites", total.Satellites),
		logger.Int("space_objects", total.SpaceObjects),
		logger.Int("orbit_states", total.OrbitStates),
		logger.Int("tle_records", total.TleRecords),
		logger.Int("skipped", total.Skipped),
	)
	metrics.UpdateCatalogObjects("seeded_space_objects", total.SpaceObjects)
	return total, nil
}

// ensureObject returns the object with the NORAD id, registering one when
// the catalog has none.
func (l *Loader) ensureObject(ctx context.Context, norad int, name string) (model.SpaceObject, bool, error) {
	obj, err := l.store.FindSpaceObject(ctx, &norad, "")
	if err == nil {
		if name != "" && obj.Name != name {
			obj.Name = name
			if err := l.store.PutSpaceObject(ctx, obj); err != nil {
				return model.SpaceObject{}, false, err
			}
		}
		return obj, false, nil
	}
	obj = model.SpaceObject{
		ID:         uuid.NewSHA1(namespace, []byte(fmt.Sprintf("norad:%d", norad))).String(),
		NoradCatID: &norad,
		Name:       name,
		ObjectType: defaultObjectType,
		CreatedAt:  l.now(),
	}
	if err := l.store.PutSpaceObject(ctx, obj); err != nil {
		return model.SpaceObject{}, false, err
	}
	return obj, true, nil
}

func tleCovariance() *[6][6]float64 {
	c := risk.DefaultCovariance(risk.SourceTLE)
	return &c
}
