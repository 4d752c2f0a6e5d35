// Package report assembles, persists, and tracks weekly run reports.
package report

import (
	"time"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

// fileTimeLayout is the UTC stamp embedded in report file names.
const fileTimeLayout = "20060102T150405Z"

// Metrics are the typed counters a company run produced.
type Metrics struct {
	Fetched  int `json:"fetched"`
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
}

// CompanyResult is one company's outcome.
type CompanyResult struct {
	Company      string                `json:"company"`
	Status       ingest.RunStatus      `json:"status"`
	Reason       string                `json:"reason,omitempty"`
	Metrics      Metrics               `json:"metrics"`
	CountryTop5  []ingest.CountryCount `json:"country_top5,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	EndedAt      time.Time             `json:"ended_at"`
	DurationSec  float64               `json:"duration_sec"`
	ErrorType    string                `json:"error_type,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
}

// Run is the whole weekly report.
type Run struct {
	RunID        string          `json:"run_id"`
	RunStartedAt time.Time       `json:"run_started_at"`
	RunEndedAt   time.Time       `json:"run_ended_at"`
	Companies    []string        `json:"companies"`
	OK           int             `json:"ok"`
	Skip         int             `json:"skip"`
	Fail         int             `json:"fail"`
	ExitCode     int             `json:"exit_code"`
	Results      []CompanyResult `json:"results"`
}

// Finalize stamps the end time and recomputes the tallies and exit code.
func (r *Run) Finalize(ended time.Time) {
	r.RunEndedAt = ended.UTC()
	r.OK, r.Skip, r.Fail = 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case ingest.StatusOK:
			r.OK++
		case ingest.StatusSkipped:
			r.Skip++
		case ingest.StatusFailed:
			r.Fail++
		}
	}
	r.ExitCode = 0
	if r.Fail > 0 {
		r.ExitCode = 1
	}
}

// Result returns the result for company.
func (r Run) Result(company string) (CompanyResult, bool) {
	for _, res := range r.Results {
		if res.Company == company {
			return res, true
		}
	}
	return CompanyResult{}, false
}

// FileName returns the report file name for a run started at t.
func FileName(t time.Time) string {
	return "weekly_ingest_" + t.UTC().Format(fileTimeLayout) + ".json"
}

// Summary is the notification published when a run ends.
type Summary struct {
	RunID     string    `json:"run_id"`
	EndedAt   time.Time `json:"ended_at"`
	OK        int       `json:"ok"`
	Skip      int       `json:"skip"`
	Fail      int       `json:"fail"`
	ExitCode  int       `json:"exit_code"`
	ReportURI string    `json:"report_uri"`
	Failed    []string  `json:"failed,omitempty"`
}

// Summarize builds the notification for r stored at uri.
func Summarize(r Run, uri string) Summary {
	s := Summary{
		RunID:     r.RunID,
		EndedAt:   r.RunEndedAt,
		OK:        r.OK,
		Skip:      r.Skip,
		Fail:      r.Fail,
		ExitCode:  r.ExitCode,
		ReportURI: uri,
	}
	for _, res := range r.Results {
		if res.Status == ingest.StatusFailed {
			s.Failed = append(s.Failed, res.Company)
		}
	}
	return s
}
