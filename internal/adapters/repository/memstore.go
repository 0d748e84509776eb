package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/risk"
	"github.com/okian/conjunct/pkg/metrics"
)

// MemoryStore keeps the catalog and the event history in memory.
//
// Concurrency:
//   - One RWMutex guards every map; reads take the read lock.
//   - Apply validates the whole batch before touching any map, so a failed
//     batch leaves no partial writes.
//   - Returned records are copies; callers may modify them freely.
type MemoryStore struct {
	mu sync.RWMutex

	sources      map[string]model.Source
	satellites   map[string]model.Satellite
	spaceObjects map[string]model.SpaceObject
	orbitStates  map[string]model.OrbitState
	tleRecords   map[string]model.TleRecord

	events      map[string]model.ConjunctionEvent
	bySatellite map[string][]string
	updates     map[string][]model.EventUpdate
	updateIDs   map[string]struct{}
	cdmRecords  map[string]model.CdmRecord
	changes     []model.Change

	metricsUpdateInterval time.Duration
	now                   func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sources:               make(map[string]model.Source),
		satellites:            make(map[string]model.Satellite),
		spaceObjects:          make(map[string]model.SpaceObject),
		orbitStates:           make(map[string]model.OrbitState),
		tleRecords:            make(map[string]model.TleRecord),
		events:                make(map[string]model.ConjunctionEvent),
		bySatellite:           make(map[string][]string),
		updates:               make(map[string][]model.EventUpdate),
		updateIDs:             make(map[string]struct{}),
		cdmRecords:            make(map[string]model.CdmRecord),
		metricsUpdateInterval: 5 * time.Second,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// PutSource stores or replaces a source.
func (s *MemoryStore) PutSource(_ context.Context, src model.Source) error {
	if src.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	s.sources[src.ID] = src
	s.mu.Unlock()
	return nil
}

// PutSatellite stores or replaces an operator satellite.
func (s *MemoryStore) PutSatellite(_ context.Context, sat model.Satellite) error {
	if sat.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sat.CreatedAt.IsZero() {
		sat.CreatedAt = s.now()
	}
	s.satellites[sat.ID] = sat
	return nil
}

// PutSpaceObject stores or replaces a space object.
func (s *MemoryStore) PutSpaceObject(_ context.Context, obj model.SpaceObject) error {
	if obj.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = s.now()
	}
	s.spaceObjects[obj.ID] = obj
	return nil
}

// PutOrbitState stores or replaces an orbit state.
func (s *MemoryStore) PutOrbitState(_ context.Context, st model.OrbitState) error {
	if st.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now()
	}
	s.orbitStates[st.ID] = st
	return nil
}

// PutTleRecord stores or replaces a TLE record.
func (s *MemoryStore) PutTleRecord(_ context.Context, rec model.TleRecord) error {
	if rec.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = s.now()
	}
	s.tleRecords[rec.ID] = rec
	return nil
}

// Satellite returns one operator satellite.
func (s *MemoryStore) Satellite(_ context.Context, id string) (model.Satellite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sat, ok := s.satellites[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Satellite{}, fmt.Errorf("satellite %q: %w", id, ErrNotFound)
	}
	return sat, nil
}

// Satellites returns every operator satellite ordered by id.
func (s *MemoryStore) Satellites(_ context.Context) ([]model.Satellite, error) {
	s.mu.RLock()
	out := make([]model.Satellite, 0, len(s.satellites))
	for _, sat := range s.satellites {
		out = append(out, sat)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SpaceObject returns one space object.
func (s *MemoryStore) SpaceObject(_ context.Context, id string) (model.SpaceObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.spaceObjects[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.SpaceObject{}, fmt.Errorf("space object %q: %w", id, ErrNotFound)
	}
	return obj, nil
}

// TleRecord returns one TLE record.
func (s *MemoryStore) TleRecord(_ context.Context, id string) (model.TleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tleRecords[id]
	if !ok {
		return model.TleRecord{}, fmt.Errorf("tle record %q: %w", id, ErrNotFound)
	}
	return rec, nil
}

// LatestTleRecord prefers a TLE no newer than at.
func (s *MemoryStore) LatestTleRecord(_ context.Context, spaceObjectID string, at time.Time) (model.TleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var before, newest *model.TleRecord
	for id := range s.tleRecords {
		rec := s.tleRecords[id]
		if rec.SpaceObjectID != spaceObjectID || spaceObjectID == "" {
			continue
		}
		if newest == nil || rec.Epoch.After(newest.Epoch) {
			newest = &rec
		}
		if !rec.Epoch.After(at) && (before == nil || rec.Epoch.After(before.Epoch)) {
			before = &rec
		}
	}
	switch {
	case before != nil:
		return *before, nil
	case newest != nil:
		return *newest, nil
	}
	return model.TleRecord{}, fmt.Errorf("tle record for %q: %w", spaceObjectID, ErrNotFound)
}

// FindSpaceObject looks up a space object by NORAD id, then by name.
// Among several name matches the oldest registration wins.
func (s *MemoryStore) FindSpaceObject(_ context.Context, noradCatID *int, name string) (model.SpaceObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var byName []model.SpaceObject
	for _, obj := range s.spaceObjects {
		if model.MatchesNorad(obj.NoradCatID, noradCatID) {
			return obj, nil
		}
		if model.MatchesName(obj.Name, name) {
			byName = append(byName, obj)
		}
	}
	if len(byName) == 0 {
		return model.SpaceObject{}, fmt.Errorf("space object norad=%s name=%q: %w", fmtNorad(noradCatID), name, ErrNotFound)
	}
	sort.Slice(byName, func(i, j int) bool {
		if !byName[i].CreatedAt.Equal(byName[j].CreatedAt) {
			return byName[i].CreatedAt.Before(byName[j].CreatedAt)
		}
		return byName[i].ID < byName[j].ID
	})
	return byName[0], nil
}

// PrimaryState picks the satellite's best valid state.
func (s *MemoryStore) PrimaryState(_ context.Context, satelliteID string, now time.Time) (model.OrbitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best model.OrbitState
	found := false
	for _, st := range s.orbitStates {
		if st.SatelliteID != satelliteID || !st.ValidAt(now) {
			continue
		}
		if !found || betterPrimary(st, best) {
			best, found = st, true
		}
	}
	if !found {
		return model.OrbitState{}, fmt.Errorf("orbit state for satellite %q: %w", satelliteID, ErrNotFound)
	}
	return best, nil
}

func betterPrimary(a, b model.OrbitState) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.Epoch.Equal(b.Epoch) {
		return a.Epoch.After(b.Epoch)
	}
	return a.ID < b.ID
}

// SecondaryStates returns the newest valid state per catalog-only object,
// ordered by space object id.
func (s *MemoryStore) SecondaryStates(_ context.Context, now time.Time) ([]model.OrbitState, error) {
	s.mu.RLock()
	latest := make(map[string]model.OrbitState)
	for _, st := range s.orbitStates {
		if st.SatelliteID != "" || st.SpaceObjectID == "" || !st.ValidAt(now) {
			continue
		}
		cur, ok := latest[st.SpaceObjectID]
		if !ok || st.Epoch.After(cur.Epoch) || (st.Epoch.Equal(cur.Epoch) && st.ID < cur.ID) {
			latest[st.SpaceObjectID] = st
		}
	}
	s.mu.RUnlock()

	out := make([]model.OrbitState, 0, len(latest))
	for _, st := range latest {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceObjectID < out[j].SpaceObjectID })
	return out, nil
}

// Cleanup applies retention by epoch. A zero cutoff keeps everything of
// that kind.
func (s *MemoryStore) Cleanup(_ context.Context, orbitStatesBefore, tleRecordsBefore time.Time) (CleanupResult, error) {
	var res CleanupResult
	s.mu.Lock()
	defer s.mu.Unlock()
	if !orbitStatesBefore.IsZero() {
		for id, st := range s.orbitStates {
			if st.Epoch.Before(orbitStatesBefore) {
				delete(s.orbitStates, id)
				res.OrbitStates++
			}
		}
	}
	if !tleRecordsBefore.IsZero() {
		for id, rec := range s.tleRecords {
			if rec.Epoch.Before(tleRecordsBefore) {
				delete(s.tleRecords, id)
				res.TleRecords++
			}
		}
	}
	return res, nil
}

// Event returns one event.
func (s *MemoryStore) Event(_ context.Context, id string) (model.ConjunctionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.ConjunctionEvent{}, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	return ev, nil
}

// EventsForSatellite returns the satellite's events ordered by TCA.
func (s *MemoryStore) EventsForSatellite(_ context.Context, satelliteID string) ([]model.ConjunctionEvent, error) {
	s.mu.RLock()
	ids := s.bySatellite[satelliteID]
	out := make([]model.ConjunctionEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.events[id])
	}
	s.mu.RUnlock()
	sortByTCA(out)
	return out, nil
}

// ActiveEvents returns every active event ordered by TCA.
func (s *MemoryStore) ActiveEvents(_ context.Context) ([]model.ConjunctionEvent, error) {
	s.mu.RLock()
	out := make([]model.ConjunctionEvent, 0)
	for _, ev := range s.events {
		if ev.IsActive {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()
	sortByTCA(out)
	return out, nil
}

func sortByTCA(evs []model.ConjunctionEvent) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].TCA.Equal(evs[j].TCA) {
			return evs[i].TCA.Before(evs[j].TCA)
		}
		return evs[i].ID < evs[j].ID
	})
}

// Updates returns the event's history, newest first.
func (s *MemoryStore) Updates(_ context.Context, eventID string, limit int) ([]model.EventUpdate, error) {
	s.mu.RLock()
	history := s.updates[eventID]
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.EventUpdate, 0, n)
	// Updates are appended in commit order, so walk backwards.
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	s.mu.RUnlock()
	return out, nil
}

// CdmRecord returns one CDM audit record.
func (s *MemoryStore) CdmRecord(_ context.Context, id string) (model.CdmRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cdmRecords[id]
	if !ok {
		return model.CdmRecord{}, fmt.Errorf("cdm record %q: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Changes returns change records detected at or after since.
func (s *MemoryStore) Changes(_ context.Context, since time.Time) ([]model.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Change, 0)
	for _, c := range s.changes {
		if !c.DetectedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Apply commits a batch atomically.
func (s *MemoryStore) Apply(_ context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(b); err != nil {
		metrics.RecordErrorByComponent("repository", "invalid_batch")
		return err
	}

	now := s.now()
	for _, obj := range b.SpaceObjects {
		if obj.CreatedAt.IsZero() {
			obj.CreatedAt = now
		}
		s.spaceObjects[obj.ID] = obj
	}
	for _, ev := range b.Events {
		if _, ok := s.events[ev.ID]; !ok {
			s.bySatellite[ev.SatelliteID] = append(s.bySatellite[ev.SatelliteID], ev.ID)
		}
		s.events[ev.ID] = ev
	}
	for _, u := range b.Updates {
		u.Drivers = append([]string(nil), u.Drivers...)
		s.updates[u.EventID] = append(s.updates[u.EventID], u)
		s.updateIDs[u.ID] = struct{}{}
	}
	for _, rec := range b.CdmRecords {
		s.cdmRecords[rec.ID] = rec
	}
	s.changes = append(s.changes, b.Changes...)
	return nil
}

// validate checks referential integrity of b against the store plus b
// itself. The write lock must be held.
func (s *MemoryStore) validate(b Batch) error {
	var problems []string

	objects := make(map[string]struct{}, len(b.SpaceObjects))
	for _, obj := range b.SpaceObjects {
		if obj.ID == "" {
			problems = append(problems, "space object without id")
			continue
		}
		objects[obj.ID] = struct{}{}
	}
	hasObject := func(id string) bool {
		if _, ok := objects[id]; ok {
			return true
		}
		_, ok := s.spaceObjects[id]
		return ok
	}

	events := make(map[string]model.ConjunctionEvent, len(b.Events))
	for _, ev := range b.Events {
		if ev.ID == "" {
			problems = append(problems, "event without id")
			continue
		}
		if prev, ok := s.events[ev.ID]; ok && (prev.SatelliteID != ev.SatelliteID || prev.SpaceObjectID != ev.SpaceObjectID) {
			problems = append(problems, fmt.Sprintf("event %s changes identity", ev.ID))
		}
		if _, ok := s.satellites[ev.SatelliteID]; !ok {
			problems = append(problems, fmt.Sprintf("event %s: unknown satellite %q", ev.ID, ev.SatelliteID))
		}
		if ev.SpaceObjectID != "" && !hasObject(ev.SpaceObjectID) {
			problems = append(problems, fmt.Sprintf("event %s: unknown space object %q", ev.ID, ev.SpaceObjectID))
		}
		events[ev.ID] = ev
	}
	hasEvent := func(id string) bool {
		if _, ok := events[id]; ok {
			return true
		}
		_, ok := s.events[id]
		return ok
	}

	updates := make(map[string]struct{}, len(b.Updates))
	for _, u := range b.Updates {
		if u.ID == "" {
			problems = append(problems, "update without id")
			continue
		}
		if _, dup := s.updateIDs[u.ID]; dup {
			problems = append(problems, fmt.Sprintf("update %s already stored", u.ID))
		}
		if _, dup := updates[u.ID]; dup {
			problems = append(problems, fmt.Sprintf("update %s repeated in batch", u.ID))
		}
		if !hasEvent(u.EventID) {
			problems = append(problems, fmt.Sprintf("update %s: unknown event %q", u.ID, u.EventID))
		}
		updates[u.ID] = struct{}{}
	}
	for _, ev := range events {
		if ev.CurrentUpdateID == "" {
			continue
		}
		_, inBatch := updates[ev.CurrentUpdateID]
		_, stored := s.updateIDs[ev.CurrentUpdateID]
		if !inBatch && !stored {
			problems = append(problems, fmt.Sprintf("event %s: unknown current update %q", ev.ID, ev.CurrentUpdateID))
		}
	}

	for _, rec := range b.CdmRecords {
		if rec.ID == "" {
			problems = append(problems, "cdm record without id")
			continue
		}
		if rec.EventID != "" && !hasEvent(rec.EventID) {
			problems = append(problems, fmt.Sprintf("cdm record %s: unknown event %q", rec.ID, rec.EventID))
		}
	}
	for _, c := range b.Changes {
		if !hasEvent(c.EventID) {
			problems = append(problems, fmt.Sprintf("change for unknown event %q", c.EventID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBatch, strings.Join(problems, "; "))
	}
	return nil
}

// Stats counts the store contents.
func (s *MemoryStore) Stats(_ context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := map[string]int{
		string(risk.TierLow):   0,
		string(risk.TierWatch): 0,
		string(risk.TierHigh):  0,
	}
	for _, ev := range s.events {
		if ev.IsActive {
			active[string(ev.RiskTier)]++
		}
	}
	return Stats{
		Sources:      len(s.sources),
		Satellites:   len(s.satellites),
		SpaceObjects: len(s.spaceObjects),
		OrbitStates:  len(s.orbitStates),
		TleRecords:   len(s.tleRecords),
		Events:       len(s.events),
		ActiveEvents: active,
		Updates:      len(s.updateIDs),
		CdmRecords:   len(s.cdmRecords),
		Changes:      len(s.changes),
	}
}

// startMetricsUpdater publishes store gauges until ctx ends or Close.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics(ctx)
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics(ctx context.Context) {
	st := s.Stats(ctx)
	metrics.UpdateCatalogObjects("satellites", st.Satellites)
	metrics.UpdateCatalogObjects("space_objects", st.SpaceObjects)
	metrics.UpdateCatalogObjects("orbit_states", st.OrbitStates)
	metrics.UpdateCatalogObjects("tle_records", st.TleRecords)
	for tier, n := range st.ActiveEvents {
		metrics.UpdateActiveEvents(tier, n)
	}
}

func fmtNorad(id *int) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}
