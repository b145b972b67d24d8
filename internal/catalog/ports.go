package catalog

import (
	"strings"
)

type keyword struct {
	key, value string
}

// portRegions maps port or city names to regions. Order matters: the first
// matching key wins.
var portRegions = []keyword{
	{"taipei", "taiwan"},
	{"taiwan", "taiwan"},
	{"shanghai", "china"},
	{"shenzhen", "china"},
	{"hong kong", "china"},
	{"singapore", "singapore"},
	{"busan", "south korea"},
	{"tokyo", "japan"},
	{"yokohama", "japan"},
	{"ho chi minh", "vietnam"},
	{"vietnam", "vietnam"},
	{"bangkok", "thailand"},
	{"jakarta", "indonesia"},
	{"manila", "philippines"},
	{"mumbai", "india"},
	{"chennai", "india"},
	{"dubai", "uae"},
	{"jeddah", "saudi arabia"},
	{"rotterdam", "netherlands"},
	{"hamburg", "germany"},
	{"antwerp", "belgium"},
	{"london", "uk"},
	{"felixstowe", "uk"},
	{"le havre", "france"},
	{"genoa", "italy"},
	{"barcelona", "spain"},
	{"piraeus", "greece"},
	{"los angeles", "usa"},
	{"long beach", "usa"},
	{"new york", "usa"},
	{"newark", "usa"},
	{"savannah", "usa"},
	{"charleston", "usa"},
	{"houston", "usa"},
	{"vancouver", "canada"},
	{"santos", "brazil"},
	{"buenos aires", "argentina"},
	{"callao", "peru"},
	{"durban", "south africa"},
	{"cape town", "south africa"},
	{"lagos", "nigeria"},
}

var countryAliases = map[string]string{
	"united states": "usa",
	"us":            "usa",
	"korea":         "south korea",
	"uae":           "uae",
}

var portCodes = []keyword{
	{"port of los angeles", "USLAX"},
	{"port of long beach", "USLGB"},
	{"port of new york", "USNYC"},
	{"port of singapore", "SGSIN"},
	{"port of shanghai", "CNSHA"},
	{"port of rotterdam", "NLRTM"},
	{"port of hamburg", "DEHAM"},
	{"port of busan", "KRBUS"},
	{"port of tokyo", "JPTYO"},
}

// waypointRegions maps waypoint keywords to the region the detour adds.
var waypointRegions = []struct {
	keys   []string
	region string
}{
	{[]string{"vietnam", "ho chi minh"}, "vietnam"},
	{[]string{"japan", "tokyo"}, "japan"},
	{[]string{"singapore"}, "singapore"},
	{[]string{"shanghai", "china"}, "china"},
	{[]string{"taiwan", "taipei"}, "taiwan"},
}

// RegionForPort infers the region of a port or place name. Names in the
// "Port of X, Country" form fall back to the country. Unknown names
// return "".
func RegionForPort(name string) string {
	n := fold(name)
	if n == "" {
		return ""
	}
	for _, kw := range portRegions {
		if strings.Contains(n, kw.key) {
			return kw.value
		}
	}
	if i := strings.LastIndex(n, ","); i >= 0 {
		country := strings.TrimSpace(n[i+1:])
		if alias, ok := countryAliases[country]; ok {
			return alias
		}
		return country
	}
	return ""
}

// PortCode returns the UN/LOCODE for a known "Port of X" name, or "".
func PortCode(name string) string {
	n := fold(name)
	for _, kw := range portCodes {
		if strings.Contains(n, kw.key) {
			return kw.value
		}
	}
	return ""
}

// RegionsFromWaypoints infers regions from waypoint names, one per
// waypoint at most, without duplicates.
func RegionsFromWaypoints(waypoints []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, wp := range waypoints {
		w := fold(wp)
	match:
		for _, wr := range waypointRegions {
			for _, k := range wr.keys {
				if strings.Contains(w, k) {
					if !seen[wr.region] {
						seen[wr.region] = true
						out = append(out, wr.region)
					}
					break match
				}
			}
		}
	}
	return out
}

// MergeRegions returns the union of region lists in first-seen order.
func MergeRegions(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, r := range l {
			r = fold(r)
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
