// Package cdm parses CCSDS Conjunction Data Messages in KVN form into
// canonical units (km, km/s, km²).
package cdm

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

var (
	lineRe = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*=\s*(.*?)\s*$`)
	unitRe = regexp.MustCompile(`^(.*?)(?:\s*\[([^\]]+)\])?$`)
)

// Object block names.
const (
	Object1 = "OBJECT1"
	Object2 = "OBJECT2"
)

// Keys that always belong to the message header even inside an OBJECT block.
var forceGlobal = map[string]struct{}{
	"CCSDS_CDM_VERS": {},
	"CREATION_DATE":  {},
	"ORIGINATOR":     {},
	"TCA":            {},
	"REF_FRAME":      {},
	"MISS_DISTANCE":  {},
	"RELATIVE_SPEED": {},
	"CR_R":           {},
	"CT_R":           {},
	"CT_T":           {},
	"CN_R":           {},
	"CN_T":           {},
	"CN_N":           {},
}

var (
	positionKeys   = []string{"X", "Y", "Z"}
	velocityKeys   = []string{"X_DOT", "Y_DOT", "Z_DOT"}
	covarianceKeys = []string{"CR_R", "CT_R", "CT_T", "CN_R", "CN_T", "CN_N"}
)

// Object is one side of the conjunction.
type Object struct {
	NoradCatID *int
	Name       string
	State      orbit.State
}

// KVN holds the raw key/value maps as read.
type KVN struct {
	Global  map[string]string `json:"global"`
	Object1 map[string]string `json:"object1"`
	Object2 map[string]string `json:"object2"`
}

// Message is a validated CDM.
type Message struct {
	Version          string
	CreationDate     time.Time
	Originator       string
	TCA              time.Time
	MissDistanceKm   float64
	RelativeSpeedKmS *float64
	RefFrame         string
	Object1          Object
	Object2          Object

	// CovarianceRTN is the combined relative position covariance in km².
	CovarianceRTN *orbit.Matrix3
	KVN           KVN
}

// Parse validates raw KVN text. Every problem is reported at once in a
// *ParseError.
func Parse(raw string) (*Message, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Problems: []string{"Empty CDM text"}}
	}

	kvn := readKVN(raw)
	var p problems
	msg := &Message{KVN: kvn}

	msg.Version = strings.TrimSpace(kvn.Global["CCSDS_CDM_VERS"])
	if msg.Version == "" {
		p.addf("Missing CCSDS_CDM_VERS")
	}
	msg.CreationDate, _ = p.parseTime(kvn.Global["CREATION_DATE"], "CREATION_DATE")
	msg.Originator = strings.TrimSpace(kvn.Global["ORIGINATOR"])
	if msg.Originator == "" {
		p.addf("Missing ORIGINATOR")
	}
	msg.TCA, _ = p.parseTime(kvn.Global["TCA"], "TCA")

	missRaw, missUnit := splitUnit(kvn.Global["MISS_DISTANCE"])
	hasUnit := p.requireUnit(missUnit, "MISS_DISTANCE")
	if v, ok := p.parseFloat(missRaw, "MISS_DISTANCE"); ok && hasUnit {
		msg.MissDistanceKm, _ = p.toKm(v, missUnit, "MISS_DISTANCE")
	}

	if rawSpeed, ok := kvn.Global["RELATIVE_SPEED"]; ok {
		spRaw, spUnit := splitUnit(rawSpeed)
		hasUnit := p.requireUnit(spUnit, "RELATIVE_SPEED")
		if v, ok := p.parseFloat(spRaw, "RELATIVE_SPEED"); ok && hasUnit {
			if kms, ok := p.toKmS(v, spUnit, "RELATIVE_SPEED"); ok {
				msg.RelativeSpeedKmS = &kms
			}
		}
	}

	ref := kvn.Global["REF_FRAME"]
	if ref == "" {
		ref = kvn.Object1["REF_FRAME"]
	}
	if ref == "" {
		ref = kvn.Object2["REF_FRAME"]
	}
	msg.RefFrame = strings.ToUpper(strings.TrimSpace(ref))
	if msg.RefFrame == "" {
		p.addf("Missing REF_FRAME")
	}

	msg.Object1.State, _ = p.objectState(kvn.Object1, Object1)
	msg.Object2.State, _ = p.objectState(kvn.Object2, Object2)
	msg.Object1.NoradCatID = p.parseInt(kvn.Object1["NORAD_CAT_ID"], Object1+".NORAD_CAT_ID")
	msg.Object2.NoradCatID = p.parseInt(kvn.Object2["NORAD_CAT_ID"], Object2+".NORAD_CAT_ID")
	msg.Object1.Name = objectName(kvn.Object1)
	msg.Object2.Name = objectName(kvn.Object2)

	msg.CovarianceRTN = p.covariance(kvn.Global)

	if len(p) > 0 {
		return nil, &ParseError{Problems: p}
	}
	return msg, nil
}

// readKVN splits text into the header and the two object maps. Keys are
// upper-cased; blank, comment and unmatched lines are ignored.
func readKVN(raw string) KVN {
	kvn := KVN{
		Global:  map[string]string{},
		Object1: map[string]string{},
		Object2: map[string]string{},
	}
	objects := map[string]map[string]string{Object1: kvn.Object1, Object2: kvn.Object2}
	var current map[string]string

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(m[1]))
		value := strings.TrimSpace(m[2])

		switch key {
		case "COMMENT":
			continue
		case "OBJECT":
			current = objects[strings.ToUpper(value)]
			continue
		}
		if _, ok := forceGlobal[key]; ok || current == nil {
			kvn.Global[key] = value
			continue
		}
		current[key] = value
	}
	return kvn
}

func (p *problems) objectState(obj map[string]string, name string) (orbit.State, bool) {
	var missing []string
	for _, k := range append(append([]string{}, positionKeys...), velocityKeys...) {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		p.addf("%s missing state fields: %s", name, strings.Join(missing, ", "))
		return orbit.State{}, false
	}

	var st orbit.State
	n := 0
	for i, k := range positionKeys {
		field := name + "." + k
		raw, unit := splitUnit(obj[k])
		hasUnit := p.requireUnit(unit, field)
		v, ok := p.parseFloat(raw, field)
		if !hasUnit || !ok {
			continue
		}
		if km, ok := p.toKm(v, unit, field); ok {
			st[i] = km
			n++
		}
	}
	for i, k := range velocityKeys {
		field := name + "." + k
		raw, unit := splitUnit(obj[k])
		hasUnit := p.requireUnit(unit, field)
		v, ok := p.parseFloat(raw, field)
		if !hasUnit || !ok {
			continue
		}
		if kms, ok := p.toKmS(v, unit, field); ok {
			st[3+i] = kms
			n++
		}
	}
	return st, n == 6
}

func (p *problems) parseInt(raw, field string) *int {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		p.addf("Invalid %s: '%s'", field, raw)
		return nil
	}
	return &v
}

func objectName(obj map[string]string) string {
	if n := strings.TrimSpace(obj["OBJECT_NAME"]); n != "" {
		return n
	}
	return strings.TrimSpace(obj["OBJECT"])
}

// covariance builds the symmetric RTN matrix when any element is present.
// Only the lower triangle is read, so symmetry holds by construction.
func (p *problems) covariance(global map[string]string) *orbit.Matrix3 {
	present := false
	var missing []string
	for _, k := range covarianceKeys {
		if _, ok := global[k]; ok {
			present = true
		} else {
			missing = append(missing, k)
		}
	}
	if !present {
		return nil
	}
	if len(missing) > 0 {
		p.addf("Covariance missing fields: %s", strings.Join(missing, ", "))
		return nil
	}

	vals := make(map[string]float64, len(covarianceKeys))
	for _, k := range covarianceKeys {
		raw, unit := splitUnit(global[k])
		hasUnit := p.requireUnit(unit, k)
		v, ok := p.parseFloat(raw, k)
		if !hasUnit || !ok {
			continue
		}
		if km2, ok := p.toKm2(v, unit, k); ok {
			vals[k] = km2
		}
	}
	if len(vals) != len(covarianceKeys) {
		return nil
	}
	if vals["CR_R"] < 0 || vals["CT_T"] < 0 || vals["CN_N"] < 0 {
		p.addf("Covariance diagonal must be non-negative")
		return nil
	}
	return &orbit.Matrix3{
		{vals["CR_R"], vals["CT_R"], vals["CN_R"]},
		{vals["CT_R"], vals["CT_T"], vals["CN_T"]},
		{vals["CN_R"], vals["CN_T"], vals["CN_N"]},
	}
}
