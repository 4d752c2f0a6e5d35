package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing or invalid startup configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstreamShape marks a payload that does not match the expected layout.
	ErrUpstreamShape = errors.New("unexpected upstream payload shape")
	// ErrDetailAccessDenied marks a detail endpoint that refused access.
	ErrDetailAccessDenied = errors.New("detail access denied")
	// ErrCompanyNotFound is returned by directories when no row matches.
	ErrCompanyNotFound = errors.New("company not found")
)

// QualityGateError reports a run that returned implausibly little data.
type QualityGateError struct {
	Fetched  int
	Total    int
	Required int
	Reason   string
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("quality gate: %s (fetched=%d total=%d required=%d)",
		e.Reason, e.Fetched, e.Total, e.Required)
}
