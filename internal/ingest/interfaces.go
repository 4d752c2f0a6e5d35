package ingest

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/companyloc-platform/internal/location"
)

// Source lists one employer's postings page by page.
type Source interface {
	Key() string
	ListPage(ctx context.Context, cursor Cursor) (Page, error)
}

// Bootstrapper is implemented by sources that need a session or token
// before the first page.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// LocationResolver is implemented by sources whose list view omits full
// location detail.
type LocationResolver interface {
	NeedsDetail(posting RawPosting) bool
	ResolveLocations(ctx context.Context, posting RawPosting) (locations []string, detailCountry string, err error)
}

// QueryFanout is implemented by sources that merge several search passes.
// The first query is the broad listing.
type QueryFanout interface {
	Queries() []string
}

// Skipper is implemented by sources that can be disabled.
type Skipper interface {
	Disabled() (bool, string)
}

// ScoringProvider selects the confidence profile for a source's locations.
type ScoringProvider interface {
	Scoring() location.Scoring
}

// Pacer inserts courtesy delays between upstream calls.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Hasher produces content digests.
type Hasher interface {
	HashFields(fields ...string) string
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// FactStore persists location facts.
type FactStore interface {
	Upsert(ctx context.Context, rows []LocationFact) (int, error)
	RefreshAggregates(ctx context.Context) error
	CountryBreakdown(ctx context.Context, companyID uuid.UUID, limit int) ([]CountryCount, error)
}

// CompanyDirectory resolves company rows by display name.
type CompanyDirectory interface {
	CompanyByName(ctx context.Context, name string) (Company, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
