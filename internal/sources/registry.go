package sources

import (
	"slices"
	"strings"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

// DefaultOrder is the declared run order of known source keys.
var DefaultOrder = []string{"amazon", "apple", "google", "intel", "meta", "microsoft", "nvidia", "nokia"}

// DisplayNames maps source keys to company names in the companies table.
var DisplayNames = map[string]string{
	"amazon":    "Amazon",
	"apple":     "Apple",
	"google":    "Google",
	"intel":     "Intel",
	"meta":      "Meta",
	"microsoft": "Microsoft",
	"nvidia":    "NVIDIA",
	"nokia":     "Nokia",
}

// DisplayName returns the company name for key.
func DisplayName(key string) string {
	if name, ok := DisplayNames[key]; ok {
		return name
	}
	return key
}

// Registry holds adapters by source key.
type Registry struct {
	sources map[string]ingest.Source
}

// NewRegistry builds a registry from adapters.
func NewRegistry(srcs ...ingest.Source) *Registry {
	r := &Registry{sources: make(map[string]ingest.Source, len(srcs))}
	for _, s := range srcs {
		r.sources[s.Key()] = s
	}
	return r
}

// Lookup returns the adapter for key.
func (r *Registry) Lookup(key string) (ingest.Source, bool) {
	s, ok := r.sources[key]
	return s, ok
}

// Keys returns registered keys in declared order, followed by any others
// sorted by name.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.sources))
	for _, k := range DefaultOrder {
		if _, ok := r.sources[k]; ok {
			out = append(out, k)
		}
	}
	var extra []string
	for k := range r.sources {
		if !slices.Contains(DefaultOrder, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// ParseKeys splits a comma-separated list into lowercase keys in the order
// given, dropping blanks and duplicates. Keys absent from known are kept and
// also returned in unknown so callers can report them.
func ParseKeys(raw string, known []string) (keys, unknown []string) {
	for _, part := range strings.Split(raw, ",") {
		k := strings.ToLower(strings.TrimSpace(part))
		if k == "" || slices.Contains(keys, k) {
			continue
		}
		keys = append(keys, k)
		if !slices.Contains(known, k) {
			unknown = append(unknown, k)
		}
	}
	return keys, unknown
}

// disabled wraps an adapter switched off by configuration.
type disabled struct {
	ingest.Source
	reason string
}

func (d disabled) Disabled() (bool, string) { return true, d.reason }

// Disable marks src as disabled with reason. The orchestrator skips it
// without calling any of its methods except Key.
func Disable(src ingest.Source, reason string) ingest.Source {
	return disabled{Source: src, reason: reason}
}
