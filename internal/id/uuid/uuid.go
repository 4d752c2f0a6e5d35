// Package uuid issues the identifiers a run needs: time-ordered run ids and
// name-derived company ids for directories that have no database behind them.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// companyNamespace scopes name-derived company ids.
var companyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("companyloc"))

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID implements ingest.IDGenerator.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// CompanyID derives a stable v5 id from a company display name. Case and
// surrounding space do not change the result.
func CompanyID(name string) uuid.UUID {
	return uuid.NewSHA1(companyNamespace, []byte(strings.ToLower(strings.TrimSpace(name))))
}
