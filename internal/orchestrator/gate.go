package orchestrator

import (
	"fmt"
	"math"
	"strings"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

// Gate holds the minimum-yield thresholds for one company.
type Gate struct {
	MinFetched int
	// MinRatio applies only when HasRatio is set and the upstream total is
	// known.
	MinRatio float64
	HasRatio bool
}

// Check returns a *ingest.QualityGateError when fetched is implausibly low.
// Every violated rule contributes to the reason, joined by "; ".
func (g Gate) Check(fetched, total int) error {
	var reasons []string
	required := g.MinFetched
	if fetched < g.MinFetched {
		reasons = append(reasons, fmt.Sprintf("fetched_below_threshold: fetched=%d min_required=%d",
			fetched, g.MinFetched))
	}
	if g.HasRatio && total > 0 {
		byRatio := int(math.Ceil(float64(total) * g.MinRatio))
		required = max(required, byRatio)
		if fetched < byRatio {
			reasons = append(reasons, fmt.Sprintf(
				"fetched_coverage_below_threshold: fetched=%d total=%d coverage=%.3f min_coverage=%.3f min_required=%d",
				fetched, total, float64(fetched)/float64(total), g.MinRatio, byRatio))
		}
	}
	if len(reasons) == 0 {
		return nil
	}
	return &ingest.QualityGateError{
		Fetched:  fetched,
		Total:    total,
		Required: required,
		Reason:   strings.Join(reasons, "; "),
	}
}
