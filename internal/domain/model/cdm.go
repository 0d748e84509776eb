package model

import (
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// CdmFormatKVN is the only accepted CDM encoding.
const CdmFormatKVN = "CCSDS_CDM_KVN"

// CdmRecord is the audit copy of an attached CDM.
type CdmRecord struct {
	ID                       string
	EventID                  string
	Format                   string
	Version                  string
	Originator               string
	CreationDate             time.Time
	RefFrame                 string
	TCA                      time.Time
	Object1NoradCatID        *int
	Object2NoradCatID        *int
	ReportedMissDistanceKm   float64
	ReportedRelativeSpeedKmS *float64
	CovarianceRTN            *orbit.Matrix3
	PrimaryObject            string
	Digest                   string
	KVN                      string
	Global                   map[string]string
	Object1                  map[string]string
	Object2                  map[string]string
	ReceivedAt               time.Time
}

// CdmJob is a queued CDM ingestion request.
type CdmJob struct {
	// ID identifies the delivery, typically the content digest.
	ID string

	// Raw is the KVN text.
	Raw string

	// Origin describes where it came from, such as a file path.
	Origin string

	// PrimarySatelliteID nominates the operator satellite, if known.
	PrimarySatelliteID string

	// EventID attaches to an existing event instead of discovering one.
	EventID    string
	ReceivedAt time.Time
}
