package location

import "strings"

// Unknown is the sentinel country for unresolvable input.
const Unknown = "UN"

// isoCodes is the ISO 3166-1 alpha-2 code set.
var isoCodes = func() map[string]struct{} {
	const codes = "AD AE AF AG AI AL AM AO AQ AR AS AT AU AW AX AZ BA BB BD BE BF BG BH BI BJ BL BM BN BO BQ BR BS BT BV BW BY BZ " +
		"CA CC CD CF CG CH CI CK CL CM CN CO CR CU CV CW CX CY CZ DE DJ DK DM DO DZ EC EE EG EH ER ES ET FI FJ FK FM FO FR " +
		"GA GB GD GE GF GG GH GI GL GM GN GP GQ GR GS GT GU GW GY HK HM HN HR HT HU ID IE IL IM IN IO IQ IR IS IT JE JM JO JP " +
		"KE KG KH KI KM KN KP KR KW KY KZ LA LB LC LI LK LR LS LT LU LV LY MA MC MD ME MF MG MH MK ML MM MN MO MP MQ MR MS MT " +
		"MU MV MW MX MY MZ NA NC NE NF NG NI NL NO NP NR NU NZ OM PA PE PF PG PH PK PL PM PN PR PS PT PW PY QA RE RO RS RU RW " +
		"SA SB SC SD SE SG SH SI SJ SK SL SM SN SO SR SS ST SV SX SY SZ TC TD TF TG TH TJ TK TL TM TN TO TR TT TV TW TZ UA UG " +
		"UM US UY UZ VA VC VE VG VI VN VU WF WS YE YT ZA ZM ZW"
	out := make(map[string]struct{}, 250)
	for _, c := range strings.Fields(codes) {
		out[c] = struct{}{}
	}
	return out
}()

// countryAliases maps uppercased names and common aliases to ISO codes.
var countryAliases = map[string]string{
	"US":                       "US",
	"USA":                      "US",
	"U.S.":                     "US",
	"U.S.A.":                   "US",
	"UNITED STATES":            "US",
	"UNITED STATES OF AMERICA": "US",
	"CANADA":                   "CA",
	"MEXICO":                   "MX",
	"GERMANY":                  "DE",
	"FRANCE":                   "FR",
	"UNITED KINGDOM":           "GB",
	"UK":                       "GB",
	"GREAT BRITAIN":            "GB",
	"ENGLAND":                  "GB",
	"SCOTLAND":                 "GB",
	"WALES":                    "GB",
	"NORTHERN IRELAND":         "GB",
	"IRELAND":                  "IE",
	"NETHERLANDS":              "NL",
	"THE NETHERLANDS":          "NL",
	"BELGIUM":                  "BE",
	"SWITZERLAND":              "CH",
	"SPAIN":                    "ES",
	"ITALY":                    "IT",
	"PORTUGAL":                 "PT",
	"AUSTRIA":                  "AT",
	"POLAND":                   "PL",
	"CZECH REPUBLIC":           "CZ",
	"CZECHIA":                  "CZ",
	"SLOVAKIA":                 "SK",
	"HUNGARY":                  "HU",
	"ROMANIA":                  "RO",
	"BULGARIA":                 "BG",
	"GREECE":                   "GR",
	"CROATIA":                  "HR",
	"SERBIA":                   "RS",
	"SLOVENIA":                 "SI",
	"ESTONIA":                  "EE",
	"LATVIA":                   "LV",
	"LITHUANIA":                "LT",
	"LUXEMBOURG":               "LU",
	"UKRAINE":                  "UA",
	"TURKEY":                   "TR",
	"TURKIYE":                  "TR",
	"SWEDEN":                   "SE",
	"NORWAY":                   "NO",
	"DENMARK":                  "DK",
	"FINLAND":                  "FI",
	"ICELAND":                  "IS",
	"ISRAEL":                   "IL",
	"UNITED ARAB EMIRATES":     "AE",
	"UAE":                      "AE",
	"SAUDI ARABIA":             "SA",
	"QATAR":                    "QA",
	"EGYPT":                    "EG",
	"SOUTH AFRICA":             "ZA",
	"NIGERIA":                  "NG",
	"KENYA":                    "KE",
	"MOROCCO":                  "MA",
	"INDIA":                    "IN",
	"PAKISTAN":                 "PK",
	"SINGAPORE":                "SG",
	"MALAYSIA":                 "MY",
	"INDONESIA":                "ID",
	"THAILAND":                 "TH",
	"VIETNAM":                  "VN",
	"VIET NAM":                 "VN",
	"PHILIPPINES":              "PH",
	"TAIWAN":                   "TW",
	"JAPAN":                    "JP",
	"KOREA":                    "KR",
	"SOUTH KOREA":              "KR",
	"REPUBLIC OF KOREA":        "KR",
	"CHINA":                    "CN",
	"HONG KONG":                "HK",
	"AUSTRALIA":                "AU",
	"NEW ZEALAND":              "NZ",
	"BRAZIL":                   "BR",
	"ARGENTINA":                "AR",
	"CHILE":                    "CL",
	"COLOMBIA":                 "CO",
	"PERU":                     "PE",
	"COSTA RICA":               "CR",
}

// ResolveCountry maps a country name, alias, or two-letter code to an ISO
// code. The second result is false when the input is not recognized.
func ResolveCountry(raw string) (string, bool) {
	key := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if key == "" {
		return Unknown, false
	}
	if code, ok := countryAliases[key]; ok {
		return code, true
	}
	if isTwoLetter(key) {
		if _, ok := isoCodes[key]; ok {
			return key, true
		}
	}
	return Unknown, false
}

// CountryOrUnknown resolves raw and returns Unknown when it is not recognized.
func CountryOrUnknown(raw string) string {
	code, _ := ResolveCountry(raw)
	return code
}

func isTwoLetter(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
