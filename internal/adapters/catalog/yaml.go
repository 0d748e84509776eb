package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/propagation"
	"github.com/okian/conjunct/internal/domain/risk"
)

// Seed is the YAML catalog layout.
type Seed struct {
	Sources      []SourceSeed    `koanf:"sources"`
	Satellites   []SatelliteSeed `koanf:"satellites"`
	SpaceObjects []ObjectSeed    `koanf:"space_objects"`
}

// SourceSeed declares a data provider.
type SourceSeed struct {
	ID   string `koanf:"id"`
	Name string `koanf:"name"`
	Type string `koanf:"type"`
}

// SatelliteSeed declares an operator satellite.
type SatelliteSeed struct {
	ID          string      `koanf:"id"`
	Name        string      `koanf:"name"`
	NoradCatID  *int        `koanf:"norad_cat_id"`
	OrbitStates []StateSeed `koanf:"orbit_states"`
}

// ObjectSeed declares a catalog-only space object.
type ObjectSeed struct {
	ID          string      `koanf:"id"`
	Name        string      `koanf:"name"`
	NoradCatID  *int        `koanf:"norad_cat_id"`
	ObjectType  string      `koanf:"object_type"`
	OrbitStates []StateSeed `koanf:"orbit_states"`
}

// StateSeed is one orbit state. Either State or TLE must be given; with
// only a TLE the state is SGP4 at the TLE epoch.
type StateSeed struct {
	ID         string      `koanf:"id"`
	Epoch      string      `koanf:"epoch"`
	Frame      string      `koanf:"frame"`
	State      []float64   `koanf:"state"`
	Covariance [][]float64 `koanf:"covariance"`
	Source     string      `koanf:"source"`
	Confidence *float64    `koanf:"confidence"`
	ValidFrom  string      `koanf:"valid_from"`
	ValidTo    string      `koanf:"valid_to"`
	TLE        *TLESeed    `koanf:"tle"`
}

// TLESeed is an inline two-line element set.
type TLESeed struct {
	Line1 string `koanf:"line1"`
	Line2 string `koanf:"line2"`
}

// ReadSeed parses a YAML catalog file.
func ReadSeed(path string) (*Seed, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadCatalog, path, err)
	}
	var seed Seed
	if err := k.UnmarshalWithConf("", &seed, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, path, err)
	}
	return &seed, nil
}

// LoadYAML reads path and writes its records into the store. Records keep
// their declared ids, so reloading replaces them.
func (l *Loader) LoadYAML(ctx context.Context, path string) (Summary, error) {
	seed, err := ReadSeed(path)
	if err != nil {
		return Summary{}, err
	}
	return l.Apply(ctx, seed)
}

// Apply validates the whole seed, then writes it.
func (l *Loader) Apply(ctx context.Context, seed *Seed) (Summary, error) {
	sources := make(map[string]model.Source, len(seed.Sources))
	for _, s := range seed.Sources {
		src := model.Source{ID: s.ID, Name: s.Name, Type: strings.ToLower(strings.TrimSpace(s.Type))}
		if src.ID == "" {
			src.ID = src.Name
		}
		if src.Name == "" {
			src.Name = src.ID
		}
		sources[src.ID] = src
		sources[src.Name] = src
	}

	now := l.now()
	var (
		sats    []model.Satellite
		objects []model.SpaceObject
		states  []model.OrbitState
		tles    []model.TleRecord
		errs    []string
	)

	for i, s := range seed.Satellites {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("satellites[%d]: missing id", i))
			continue
		}
		objID := "obj-" + s.ID
		sats = append(sats, model.Satellite{ID: s.ID, Name: s.Name, NoradCatID: s.NoradCatID, SpaceObjectID: objID, CreatedAt: now})
		objects = append(objects, model.SpaceObject{ID: objID, Name: s.Name, NoradCatID: s.NoradCatID, ObjectType: defaultObjectType, CreatedAt: now})
		for j, ss := range s.OrbitStates {
			st, tle, err := l.buildState(ss, sources, now)
			if err != nil {
				errs = append(errs, fmt.Sprintf("satellites[%d].orbit_states[%d]: %v", i, j, err))
				continue
			}
			st.SatelliteID = s.ID
			st.SpaceObjectID = objID
			if st.ID == "" {
				st.ID = fmt.Sprintf("%s-state-%d", s.ID, j)
			}
			states, tles = appendState(states, tles, st, tle, objID, s.NoradCatID, s.Name)
		}
	}

	for i, o := range seed.SpaceObjects {
		if o.ID == "" {
			errs = append(errs, fmt.Sprintf("space_objects[%d]: missing id", i))
			continue
		}
		objType := o.ObjectType
		if objType == "" {
			objType = defaultObjectType
		}
		objects = append(objects, model.SpaceObject{ID: o.ID, Name: o.Name, NoradCatID: o.NoradCatID, ObjectType: objType, CreatedAt: now})
		for j, ss := range o.OrbitStates {
			st, tle, err := l.buildState(ss, sources, now)
			if err != nil {
				errs = append(errs, fmt.Sprintf("space_objects[%d].orbit_states[%d]: %v", i, j, err))
				continue
			}
			st.SpaceObjectID = o.ID
			if st.ID == "" {
				st.ID = fmt.Sprintf("%s-state-%d", o.ID, j)
			}
			states, tles = appendState(states, tles, st, tle, o.ID, o.NoradCatID, o.Name)
		}
	}

	if len(errs) > 0 {
		return Summary{}, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(errs, "; "))
	}

	sum := Summary{}
	seen := make(map[string]struct{})
	for _, src := range sources {
		if _, dup := seen[src.ID]; dup {
			continue
		}
		seen[src.ID] = struct{}{}
		if err := l.store.PutSource(ctx, src); err != nil {
			return sum, err
		}
		sum.Sources++
	}
	for _, o := range objects {
		if err := l.store.PutSpaceObject(ctx, o); err != nil {
			return sum, err
		}
	}
	sum.SpaceObjects = len(objects) - len(sats)
	for _, s := range sats {
		if err := l.store.PutSatellite(ctx, s); err != nil {
			return sum, err
		}
		sum.Satellites++
	}
	for _, t := range tles {
		if err := l.store.PutTleRecord(ctx, t); err != nil {
			return sum, err
		}
		sum.TleRecords++
	}
	for _, st := range states {
		if err := l.store.PutOrbitState(ctx, st); err != nil {
			return sum, err
		}
		sum.OrbitStates++
	}
	return sum, nil
}

func appendState(states []model.OrbitState, tles []model.TleRecord, st model.OrbitState, tle *model.TleRecord,
	objID string, norad *int, name string,
) ([]model.OrbitState, []model.TleRecord) {
	if tle != nil {
		tle.ID = st.ID + "-tle"
		tle.SpaceObjectID = objID
		tle.Name = name
		if norad != nil {
			tle.NoradCatID = *norad
		}
		st.TleRecordID = tle.ID
		tles = append(tles, *tle)
	}
	return append(states, st), tles
}

func (l *Loader) buildState(ss StateSeed, sources map[string]model.Source, now time.Time) (model.OrbitState, *model.TleRecord, error) {
	st := model.OrbitState{
		ID:         ss.ID,
		Frame:      strings.TrimSpace(ss.Frame),
		Confidence: defaultConfidence,
		CreatedAt:  now,
	}
	if ss.Confidence != nil {
		if *ss.Confidence < 0 || *ss.Confidence > 1 {
			return st, nil, fmt.Errorf("confidence %v outside [0,1]", *ss.Confidence)
		}
		st.Confidence = *ss.Confidence
	}
	if src, ok := sources[ss.Source]; ok {
		st.SourceID, st.SourceName, st.SourceType = src.ID, src.Name, src.Type
	} else {
		st.SourceName = ss.Source
	}

	var err error
	if ss.ValidFrom != "" {
		if st.ValidFrom, err = parseTimePtr(ss.ValidFrom); err != nil {
			return st, nil, fmt.Errorf("valid_from: %w", err)
		}
	}
	if ss.ValidTo != "" {
		if st.ValidTo, err = parseTimePtr(ss.ValidTo); err != nil {
			return st, nil, fmt.Errorf("valid_to: %w", err)
		}
	}

	var tle *model.TleRecord
	if ss.TLE != nil {
		line1, line2 := strings.TrimSpace(ss.TLE.Line1), strings.TrimSpace(ss.TLE.Line2)
		sgp, err := propagation.NewSGP4(line1, line2)
		if err != nil {
			return st, nil, err
		}
		epoch, err := ParseEpoch(strings.TrimSpace(line1[18:32]))
		if err != nil {
			return st, nil, err
		}
		tle = &model.TleRecord{Line1: line1, Line2: line2, Epoch: epoch, Source: st.SourceName, IngestedAt: now}
		if len(ss.State) == 0 {
			if st.State, err = sgp.Propagate(epoch); err != nil {
				return st, nil, err
			}
			st.Epoch = epoch
			st.Frame = propagation.FrameTEME
		}
		if st.SourceType == "" {
			st.SourceType = risk.SourceTLE
		}
	}

	if len(ss.State) > 0 {
		if len(ss.State) != 6 {
			return st, nil, fmt.Errorf("state must have 6 components, got %d", len(ss.State))
		}
		copy(st.State[:], ss.State)
		if !st.State.IsFinite() {
			return st, nil, fmt.Errorf("state is not finite")
		}
		if ss.Epoch == "" {
			return st, nil, fmt.Errorf("epoch is required with an explicit state")
		}
	} else if tle == nil {
		return st, nil, fmt.Errorf("either state or tle is required")
	}
	if ss.Epoch != "" {
		t, err := time.Parse(time.RFC3339, ss.Epoch)
		if err != nil {
			return st, nil, fmt.Errorf("epoch: %w", err)
		}
		st.Epoch = t.UTC()
	}
	if st.Frame == "" {
		st.Frame = defaultFrame
	}

	if len(ss.Covariance) > 0 {
		cov, err := covariance6(ss.Covariance)
		if err != nil {
			return st, nil, err
		}
		st.Covariance = cov
	}
	return st, tle, nil
}

func covariance6(rows [][]float64) (*[6][6]float64, error) {
	if len(rows) != 6 {
		return nil, fmt.Errorf("covariance must be 6x6, got %d rows", len(rows))
	}
	var c [6][6]float64
	for i, row := range rows {
		if len(row) != 6 {
			return nil, fmt.Errorf("covariance row %d has %d columns", i, len(row))
		}
		if row[i] < 0 {
			return nil, fmt.Errorf("covariance diagonal %d is negative", i)
		}
		copy(c[i][:], row)
	}
	// Keep only the symmetric part.
	for i := 0; i < 6; i++ {
		for j := i + 1; j < 6; j++ {
			m := (c[i][j] + c[j][i]) / 2
			c[i][j], c[j][i] = m, m
		}
	}
	return &c, nil
}

func parseTimePtr(s string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
