// Package facts turns collected postings into storage-ready location facts
// and resolves conflict-key duplicates before the write.
package facts

import (
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

// Builder converts postings into location facts for one company snapshot.
type Builder struct {
	hasher  ingest.Hasher
	scoring location.Scoring
}

// NewBuilder returns a Builder using the given hasher and confidence profile.
func NewBuilder(hasher ingest.Hasher, scoring location.Scoring) *Builder {
	return &Builder{hasher: hasher, scoring: scoring}
}

// SnapshotDates returns the snapshot day and month for a capture time.
func SnapshotDates(capturedAt time.Time) (day, month time.Time) {
	t := capturedAt.UTC()
	day = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	month = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, month
}

// Build emits one fact per posting location.
func (b *Builder) Build(company ingest.Company, postings []ingest.RawPosting, capturedAt time.Time) []ingest.LocationFact {
	day, month := SnapshotDates(capturedAt)
	captured := capturedAt.UTC()
	rows := make([]ingest.LocationFact, 0, len(postings))
	for _, p := range postings {
		hash := b.contentHash(company, p, month)
		for _, raw := range p.Locations {
			loc := b.scoring.Normalize(raw, p.DetailCountry)
			rows = append(rows, ingest.LocationFact{
				CompanyID:     company.ID,
				JobKey:        p.JobKey,
				SnapshotMonth: month,
				SnapshotDate:  day,
				Title:         p.Title,
				CityRaw:       loc.CityRaw,
				CountryRaw:    loc.CountryRaw,
				LocationRaw:   raw,
				CityNorm:      loc.City,
				RegionNorm:    loc.Region,
				CountryNorm:   loc.Country,
				Confidence:    loc.Confidence,
				PostedAt:      p.PostedAt,
				ContentHash:   hash,
				CapturedAt:    captured,
			})
		}
	}
	return rows
}

func (b *Builder) contentHash(company ingest.Company, p ingest.RawPosting, month time.Time) string {
	locs := append([]string(nil), p.Locations...)
	sort.Strings(locs)
	return b.hasher.HashFields(
		company.ID.String(),
		p.JobKey,
		month.Format(time.DateOnly),
		p.Title,
		strings.Join(locs, ";"),
	)
}
