// Package ingest defines core types shared across subsystems.
package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/companyloc-platform/internal/location"
)

// RunStatus represents the lifecycle state of one company run.
type RunStatus string

// Company run states.
const (
	StatusPending RunStatus = "pending"
	StatusRunning RunStatus = "running"
	StatusOK      RunStatus = "ok"
	StatusSkipped RunStatus = "skip"
	StatusFailed  RunStatus = "fail"
)

// Terminal reports whether the status is one of ok, skip, or fail.
func (s RunStatus) Terminal() bool {
	return s == StatusOK || s == StatusSkipped || s == StatusFailed
}

// Company identifies an employer whose listings are ingested.
type Company struct {
	ID        uuid.UUID
	Name      string
	SourceKey string
	Active    bool
}

// RawPosting is the canonical record an adapter produces for one job.
type RawPosting struct {
	JobKey        string
	Title         string
	Locations     []string
	DetailCountry string
	PostedAt      *time.Time
	// LocationsText is the unresolved list-view text, kept so detail
	// resolution can fall back to it.
	LocationsText string
}

// NormalizedLocation is the normalizer's interpretation of one raw location.
type NormalizedLocation = location.Normalized

// LocationFact is one persisted row. Every field is a scalar.
type LocationFact struct {
	CompanyID     uuid.UUID
	JobKey        string
	SnapshotMonth time.Time
	SnapshotDate  time.Time
	Title         string
	CityRaw       string
	CountryRaw    string
	LocationRaw   string
	CityNorm      string
	RegionNorm    string
	CountryNorm   string
	Confidence    float64
	PostedAt      *time.Time
	ContentHash   string
	CapturedAt    time.Time
}

// ConflictKey is the uniqueness tuple enforced by storage.
type ConflictKey struct {
	CompanyID    uuid.UUID
	JobKey       string
	SnapshotDate string
	CountryNorm  string
	CityNorm     string
}

// Key returns the conflict key for the fact. An absent city is the empty string.
func (f LocationFact) Key() ConflictKey {
	return ConflictKey{
		CompanyID:    f.CompanyID,
		JobKey:       f.JobKey,
		SnapshotDate: f.SnapshotDate.Format(time.DateOnly),
		CountryNorm:  f.CountryNorm,
		CityNorm:     f.CityNorm,
	}
}

// Cursor addresses one listing page. Adapters use either Offset or Page.
type Cursor struct {
	Query  string
	Offset int
	Page   int
}

// Page is one listing response.
type Page struct {
	// Total is the upstream-reported total; zero or less means unknown.
	Total    int
	Postings []RawPosting
	Next     Cursor
	// Done is set by adapters that detect the end themselves, such as a
	// short page or a documented index cap.
	Done bool
}

// CollectResult is the outcome of draining one source.
type CollectResult struct {
	Total    int
	Postings []RawPosting
	Pages    int
	// Dropped counts postings discarded for a missing key or no locations.
	Dropped int
}

// CountryCount is one row of a per-company country breakdown.
type CountryCount struct {
	Country string `json:"country"`
	Jobs    int    `json:"jobs"`
}
