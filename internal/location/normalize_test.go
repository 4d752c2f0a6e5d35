package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeExamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		detail  string
		want    Normalized
		minConf float64
		maxConf float64
	}{
		{
			name:    "country code region city",
			raw:     "US, CA, Santa Clara",
			detail:  "UN",
			want:    Normalized{Country: "US", Region: "CA", City: "Santa Clara"},
			minConf: 0.95, maxConf: 0.95,
		},
		{
			name:    "country name and city",
			raw:     "Germany, Munich",
			detail:  "UN",
			want:    Normalized{Country: "DE", City: "Munich"},
			minConf: 0.9, maxConf: 1,
		},
		{
			name:    "single fragment uses detail country",
			raw:     "Remote",
			detail:  "DE",
			want:    Normalized{Country: "DE", City: "Remote"},
			minConf: 0.65, maxConf: 0.7,
		},
		{
			name:    "empty input",
			raw:     "",
			detail:  "UN",
			want:    Normalized{Country: "UN"},
			minConf: 0, maxConf: 0,
		},
		{
			name:    "multi word city is joined",
			raw:     "US, NY, New York, Manhattan",
			detail:  "",
			want:    Normalized{Country: "US", Region: "NY", City: "New York, Manhattan"},
			minConf: 0.95, maxConf: 0.95,
		},
		{
			name:    "unknown code is unknown country",
			raw:     "XX, Region, Town",
			detail:  "Canada",
			want:    Normalized{Country: "UN", Region: "Region", City: "Town"},
			minConf: 0.5, maxConf: 0.5,
		},
		{
			name:    "two fragment alias keeps the city",
			raw:     "UK, London",
			detail:  "DE",
			want:    Normalized{Country: "GB", City: "London"},
			minConf: 0.9, maxConf: 0.9,
		},
		{
			name:    "two fragment code keeps the city",
			raw:     "IN, Bangalore",
			detail:  "DE",
			want:    Normalized{Country: "IN", City: "Bangalore"},
			minConf: 0.9, maxConf: 0.9,
		},
		{
			name:    "two fragment remote",
			raw:     "US, Remote",
			detail:  "",
			want:    Normalized{Country: "US", City: "Remote"},
			minConf: 0.9, maxConf: 0.9,
		},
		{
			name:    "unresolved first fragment with known detail",
			raw:     "Santa Clara, California",
			detail:  "United States of America",
			want:    Normalized{Country: "US", City: "California"},
			minConf: 0.85, maxConf: 0.85,
		},
		{
			name:    "nothing resolves",
			raw:     "Somewhere, Else",
			detail:  "",
			want:    Normalized{Country: "UN", City: "Else"},
			minConf: 0.2, maxConf: 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.raw, tt.detail)
			assert.Equal(t, tt.want.Country, got.Country)
			assert.Equal(t, tt.want.Region, got.Region)
			assert.Equal(t, tt.want.City, got.City)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
			assert.LessOrEqual(t, got.Confidence, tt.maxConf)
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	t.Parallel()

	inputs := [][2]string{
		{"US, CA, Santa Clara", "UN"},
		{"Israel, Yokneam", ""},
		{"Remote", "DE"},
		{"  , ,", "FR"},
		{"Japan, Tokyo, Shibuya", "JP"},
	}
	for _, in := range inputs {
		first := Normalize(in[0], in[1])
		for i := 0; i < 5; i++ {
			require.Equal(t, first, Normalize(in[0], in[1]), "input %q", in[0])
		}
	}
}

func TestListScoringProfile(t *testing.T) {
	t.Parallel()

	got := ListScoring.Normalize("Germany, Berlin", "")
	assert.Equal(t, "DE", got.Country)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	got = ListScoring.Normalize("Virtual", "")
	assert.Equal(t, "UN", got.Country)
	assert.InDelta(t, 0.2, got.Confidence, 1e-9)

	got = ListScoring.Normalize("Virtual", "US")
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)
}

func TestResolveCountry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"us", "US", true},
		{"U.S.A.", "US", true},
		{"united   kingdom", "GB", true},
		{"UK", "GB", true},
		{"Czechia", "CZ", true},
		{"South Korea", "KR", true},
		{"de", "DE", true},
		{"ZZ", "UN", false},
		{"Atlantis", "UN", false},
		{"", "UN", false},
	}
	for _, tt := range tests {
		got, ok := ResolveCountry(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
