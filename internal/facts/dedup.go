package facts

import "github.com/JakeFAU/companyloc-platform/internal/ingest"

// Dedup keeps one row per conflict key. The highest confidence wins and ties
// keep the first row seen. Output order follows each key's first occurrence.
func Dedup(rows []ingest.LocationFact) []ingest.LocationFact {
	if len(rows) == 0 {
		return nil
	}
	index := make(map[ingest.ConflictKey]int, len(rows))
	out := make([]ingest.LocationFact, 0, len(rows))
	for _, row := range rows {
		key := row.Key()
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, row)
			continue
		}
		if row.Confidence > out[i].Confidence {
			out[i] = row
		}
	}
	return out
}
