// Package location turns free-text job locations into a country, region,
// and city with a confidence score.
//
// Input strings are comma-separated fragments with no guaranteed order. The
// rules are applied in priority order:
//
//  1. A leading two-letter fragment is a country code; the second fragment is
//     the region and the remainder is the city.
//  2. With two or more fragments the last one is the city and the first one
//     is looked up as a country name, falling back to the detail country.
//  3. A single fragment is kept as the city literal and the detail country is
//     used as the country.
//  4. Empty input yields the detail country with zero confidence.
//
// Normalize is pure: identical inputs always produce identical output.
package location

import "strings"

// Normalized is the interpretation of one raw location string.
// Empty City or Region means the value is absent.
type Normalized struct {
	City       string  `json:"city,omitempty"`
	Region     string  `json:"region,omitempty"`
	Country    string  `json:"country"`
	Confidence float64 `json:"confidence"`
	// CityRaw and CountryRaw are the fragments the values were taken from.
	CityRaw    string `json:"city_raw,omitempty"`
	CountryRaw string `json:"country_raw,omitempty"`
}

// Scoring holds the confidence assigned by each rule.
type Scoring struct {
	CodeKnown           float64
	CodeUnknown         float64
	NameResolved        float64
	DetailKnown         float64
	DetailUnknown       float64
	SingleDetailKnown   float64
	SingleDetailUnknown float64
}

// DefaultScoring suits sources whose list text starts with a country code
// or name, such as Workday tenants.
var DefaultScoring = Scoring{
	CodeKnown:           0.95,
	CodeUnknown:         0.5,
	NameResolved:        0.9,
	DetailKnown:         0.85,
	DetailUnknown:       0.2,
	SingleDetailKnown:   0.7,
	SingleDetailUnknown: 0.1,
}

// ListScoring suits search APIs whose location text is looser.
var ListScoring = Scoring{
	CodeKnown:           0.95,
	CodeUnknown:         0.5,
	NameResolved:        0.8,
	DetailKnown:         0.8,
	DetailUnknown:       0.3,
	SingleDetailKnown:   0.65,
	SingleDetailUnknown: 0.2,
}

// Normalize applies DefaultScoring.
func Normalize(raw, detailCountry string) Normalized {
	return DefaultScoring.Normalize(raw, detailCountry)
}

// Normalize interprets raw using detailCountry as the fallback country.
// detailCountry may be a name, alias, or code; unresolvable values are
// treated as Unknown.
func (s Scoring) Normalize(raw, detailCountry string) Normalized {
	detail, detailKnown := ResolveCountry(detailCountry)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Normalized{Country: detail}
	}

	parts := splitFragments(raw)
	if len(parts) == 0 {
		return Normalized{Country: detail}
	}

	if len(parts) >= 3 && isTwoLetter(parts[0]) {
		city := strings.Join(parts[2:], ", ")
		out := Normalized{CountryRaw: parts[0], Region: parts[1], City: city, CityRaw: city}
		out.Country, _ = ResolveCountry(parts[0])
		if out.Country == Unknown {
			out.Confidence = s.CodeUnknown
		} else {
			out.Confidence = s.CodeKnown
		}
		return out
	}

	if len(parts) >= 2 {
		city := parts[len(parts)-1]
		out := Normalized{City: city, CityRaw: city}
		if code, ok := ResolveCountry(parts[0]); ok {
			out.Country = code
			out.CountryRaw = parts[0]
			out.Confidence = s.NameResolved
			return out
		}
		out.Country = detail
		if detailKnown {
			out.Confidence = s.DetailKnown
		} else {
			out.Confidence = s.DetailUnknown
		}
		return out
	}

	out := Normalized{City: parts[0], CityRaw: parts[0], Country: detail}
	if detailKnown {
		out.Confidence = s.SingleDetailKnown
	} else {
		out.Confidence = s.SingleDetailUnknown
	}
	return out
}

func splitFragments(raw string) []string {
	fields := strings.Split(raw, ",")
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
