package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

// FactStore keeps location facts in memory with the same conflict semantics
// as the Postgres store. It backs dry runs and tests.
type FactStore struct {
	mu        sync.RWMutex
	rows      map[ingest.ConflictKey]ingest.LocationFact
	order     []ingest.ConflictKey
	refreshes int
}

// NewFactStore constructs an empty FactStore.
func NewFactStore() *FactStore {
	return &FactStore{rows: make(map[ingest.ConflictKey]ingest.LocationFact)}
}

// Upsert inserts new keys and overwrites existing ones.
func (s *FactStore) Upsert(_ context.Context, rows []ingest.LocationFact) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		k := r.Key()
		if _, ok := s.rows[k]; !ok {
			s.order = append(s.order, k)
		}
		s.rows[k] = r
	}
	return len(rows), nil
}

// RefreshAggregates counts calls; there are no views to refresh.
func (s *FactStore) RefreshAggregates(context.Context) error {
	s.mu.Lock()
	s.refreshes++
	s.mu.Unlock()
	return nil
}

// Refreshes reports how many times RefreshAggregates ran.
func (s *FactStore) Refreshes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshes
}

// Facts returns stored rows in first-insert order.
func (s *FactStore) Facts() []ingest.LocationFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.LocationFact, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.rows[k])
	}
	return out
}

// CountryBreakdown counts distinct job keys per country at the company's
// latest snapshot date.
func (s *FactStore) CountryBreakdown(_ context.Context, companyID uuid.UUID, limit int) ([]ingest.CountryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := ""
	for k := range s.rows {
		if k.CompanyID == companyID && k.SnapshotDate > latest {
			latest = k.SnapshotDate
		}
	}
	jobs := make(map[string]map[string]struct{})
	for k := range s.rows {
		if k.CompanyID != companyID || k.SnapshotDate != latest {
			continue
		}
		if jobs[k.CountryNorm] == nil {
			jobs[k.CountryNorm] = make(map[string]struct{})
		}
		jobs[k.CountryNorm][k.JobKey] = struct{}{}
	}
	out := make([]ingest.CountryCount, 0, len(jobs))
	for country, keys := range jobs {
		out = append(out, ingest.CountryCount{Country: country, Jobs: len(keys)})
	}
	slices.SortFunc(out, func(a, b ingest.CountryCount) int {
		if c := cmp.Compare(b.Jobs, a.Jobs); c != 0 {
			return c
		}
		return cmp.Compare(a.Country, b.Country)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CompanyDirectory resolves companies from a fixed list.
type CompanyDirectory struct {
	mu        sync.RWMutex
	companies map[string]ingest.Company
}

// NewCompanyDirectory constructs a directory holding companies.
func NewCompanyDirectory(companies ...ingest.Company) *CompanyDirectory {
	d := &CompanyDirectory{companies: make(map[string]ingest.Company, len(companies))}
	for _, c := range companies {
		d.Add(c)
	}
	return d
}

// Add registers or replaces a company.
func (d *CompanyDirectory) Add(c ingest.Company) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.companies[strings.ToLower(c.Name)] = c
}

// CompanyByName looks a company up by case-insensitive name.
func (d *CompanyDirectory) CompanyByName(_ context.Context, name string) (ingest.Company, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.companies[strings.ToLower(name)]
	if !ok {
		return ingest.Company{}, fmt.Errorf("%q: %w", name, ingest.ErrCompanyNotFound)
	}
	return c, nil
}

var (
	_ ingest.FactStore        = (*FactStore)(nil)
	_ ingest.CompanyDirectory = (*CompanyDirectory)(nil)
)
