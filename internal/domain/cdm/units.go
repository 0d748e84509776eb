package cdm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// problems accumulates validation messages in discovery order.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// splitUnit separates "20.0 [m]" into ("20.0", "m").
func splitUnit(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	m := unitRe.FindStringSubmatch(raw)
	if m == nil {
		return raw, ""
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
}

func (p *problems) requireUnit(unit, field string) bool {
	if unit == "" {
		p.addf("Missing units for %s (expected bracket units like [km] or [m])", field)
		return false
	}
	return true
}

// parseFloat accepts Fortran-style D exponents. NaN, infinities and hex
// floats are not KVN numbers.
func (p *problems) parseFloat(raw, field string) (float64, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		p.addf("Missing %s", field)
		return 0, false
	}
	text = strings.NewReplacer("D", "E", "d", "e").Replace(text)
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || strings.ContainsAny(text, "xX") {
		p.addf("Invalid %s: '%s'", field, raw)
		return 0, false
	}
	return v, true
}

func normalizeUnit(unit string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(unit)), " ", "")
}

func (p *problems) toKm(v float64, unit, field string) (float64, bool) {
	u := normalizeUnit(unit)
	switch {
	case strings.Contains(u, "km"):
		return v, true
	case strings.HasSuffix(u, "m"):
		return v / 1000.0, true
	}
	p.addf("Unsupported units for %s: '%s'", field, unit)
	return 0, false
}

func (p *problems) toKmS(v float64, unit, field string) (float64, bool) {
	u := normalizeUnit(unit)
	switch {
	case strings.Contains(u, "km/s") || (strings.Contains(u, "km") && strings.Contains(u, "/s")):
		return v, true
	case strings.Contains(u, "m/s"):
		return v / 1000.0, true
	}
	p.addf("Unsupported units for %s: '%s'", field, unit)
	return 0, false
}

func (p *problems) toKm2(v float64, unit, field string) (float64, bool) {
	u := strings.ReplaceAll(normalizeUnit(unit), "**", "^")
	squared := strings.Contains(u, "2")
	switch {
	case strings.Contains(u, "km") && squared:
		return v, true
	case strings.Contains(u, "m") && squared:
		return v / 1_000_000.0, true
	}
	p.addf("Unsupported units for %s: '%s'", field, unit)
	return 0, false
}

// dateLayouts are tried in order. Values without a zone are UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-002T15:04:05.999999999Z07:00",
	"2006-002T15:04:05.999999999",
	"2006-01-02",
}

func (p *problems) parseTime(raw, field string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		p.addf("Missing %s", field)
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	p.addf("Invalid %s: '%s'", field, raw)
	return time.Time{}, false
}
