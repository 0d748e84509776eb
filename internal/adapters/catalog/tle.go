package catalog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/propagation"
	"github.com/okian/conjunct/internal/domain/risk"
	"github.com/okian/conjunct/pkg/logger"
)

const defaultTLESource = "tle-file"

// Entry is one parsed three-line element set.
type Entry struct {
	NoradID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// ParseTLE reads 3-line NORAD TLE text. Malformed entries are skipped with
// a warning; the count of skipped entries is returned alongside.
func ParseTLE(ctx context.Context, r io.Reader, log logger.Logger) ([]Entry, int, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrReadTLE, err)
	}

	var entries []Entry
	skipped := 0
	for i := 0; i+2 < len(lines); {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resync on the next line.
			log.Warn(ctx, "skipping malformed TLE entry", logger.Int("line_index", i), logger.String("name", name))
			skipped++
			i++
			continue
		}
		i += 3

		if err := propagation.ValidateTLELines(line1, line2); err != nil {
			log.Warn(ctx, "skipping TLE entry", logger.String("name", name), logger.Error(err))
			skipped++
			continue
		}
		noradStr := strings.TrimSpace(line1[2:7])
		noradID, err := strconv.Atoi(noradStr)
		if err != nil {
			log.Warn(ctx, "skipping TLE entry with invalid NORAD ID", logger.String("norad_str", noradStr), logger.String("name", name))
			skipped++
			continue
		}
		epochStr := strings.TrimSpace(line1[18:32])
		epoch, err := ParseEpoch(epochStr)
		if err != nil {
			log.Warn(ctx, "skipping TLE entry with invalid epoch", logger.String("epoch_str", epochStr), logger.String("name", name), logger.Error(err))
			skipped++
			continue
		}

		entries = append(entries, Entry{
			NoradID: noradID,
			Name:    strings.TrimSpace(name),
			Epoch:   epoch,
			Line1:   line1,
			Line2:   line2,
		})
	}
	return entries, skipped, nil
}

// ParseEpoch converts a YYDDD.DDDDDDDD TLE epoch to UTC.
// Years 00-56 are 2000s, 57-99 are 1900s.
func ParseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}
	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}
	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day out of range: %v", dayOfYear)
	}
	// Day 1 is Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}

// LoadTLEFile imports a TLE file; see LoadTLE.
func (l *Loader) LoadTLEFile(ctx context.Context, path, source string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %s: %w", ErrReadTLE, path, err)
	}
	defer func() { _ = f.Close() }()
	return l.LoadTLE(ctx, f, source)
}

// LoadTLE imports every entry as a catalog object with a TLE record and an
// orbit state holding the SGP4 TEME state at the TLE epoch. The state links
// the TLE, so screening propagates it with SGP4.
func (l *Loader) LoadTLE(ctx context.Context, r io.Reader, source string) (Summary, error) {
	if source == "" {
		source = defaultTLESource
	}
	entries, skipped, err := ParseTLE(ctx, r, l.log)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Skipped: skipped}
	for _, e := range entries {
		created, err := l.importEntry(ctx, e, source)
		if err != nil {
			l.log.Warn(ctx, "skipping TLE entry", logger.Int("norad_cat_id", e.NoradID), logger.Error(err))
			sum.Skipped++
			continue
		}
		if created {
			sum.SpaceObjects++
		}
		sum.TleRecords++
		sum.OrbitStates++
	}
	return sum, nil
}

func (l *Loader) importEntry(ctx context.Context, e Entry, source string) (bool, error) {
	sgp, err := propagation.NewSGP4(e.Line1, e.Line2)
	if err != nil {
		return false, err
	}
	state, err := sgp.Propagate(e.Epoch)
	if err != nil {
		return false, err
	}
	obj, created, err := l.ensureObject(ctx, e.NoradID, e.Name)
	if err != nil {
		return false, err
	}

	now := l.now()
	key := []byte(e.Line1 + "\n" + e.Line2)
	rec := model.TleRecord{
		ID:            uuid.NewSHA1(namespace, key).String(),
		SpaceObjectID: obj.ID,
		NoradCatID:    e.NoradID,
		Name:          e.Name,
		Line1:         e.Line1,
		Line2:         e.Line2,
		Epoch:         e.Epoch,
		Source:        source,
		IngestedAt:    now,
	}
	if err := l.store.PutTleRecord(ctx, rec); err != nil {
		return false, err
	}
	st := model.OrbitState{
		ID:            uuid.NewSHA1(namespace, append([]byte("state:"), key...)).String(),
		SpaceObjectID: obj.ID,
		Epoch:         e.Epoch,
		Frame:         propagation.FrameTEME,
		State:         state,
		Covariance:    tleCovariance(),
		TleRecordID:   rec.ID,
		SourceName:    source,
		SourceType:    risk.SourceTLE,
		Confidence:    tleConfidence,
		CreatedAt:     now,
	}
	if err := l.store.PutOrbitState(ctx, st); err != nil {
		return false, err
	}
	return created, nil
}
