package compliance

import (
	"strings"
	"sync"
	"time"
)

// NANP area code -> IANA zone. Not exhaustive; numbers outside this map are
// treated as having no resolvable timezone, which fail-closes the gate's
// time-based checks.
var areaCodeZones = map[string]string{
	// Eastern
	"212": "America/New_York", "646": "America/New_York", "718": "America/New_York",
	"917": "America/New_York", "516": "America/New_York", "631": "America/New_York",
	"201": "America/New_York", "973": "America/New_York", "215": "America/New_York",
	"267": "America/New_York", "412": "America/New_York", "617": "America/New_York",
	"857": "America/New_York", "203": "America/New_York", "202": "America/New_York",
	"301": "America/New_York", "240": "America/New_York", "404": "America/New_York",
	"678": "America/New_York", "305": "America/New_York", "786": "America/New_York",
	"407": "America/New_York", "813": "America/New_York", "704": "America/New_York",
	"919": "America/New_York", "216": "America/New_York", "614": "America/New_York",
	"313": "America/Detroit", "248": "America/Detroit",
	// Central
	"312": "America/Chicago", "773": "America/Chicago", "872": "America/Chicago",
	"214": "America/Chicago", "469": "America/Chicago", "972": "America/Chicago",
	"713": "America/Chicago", "281": "America/Chicago", "832": "America/Chicago",
	"210": "America/Chicago", "512": "America/Chicago", "615": "America/Chicago",
	"314": "America/Chicago", "414": "America/Chicago", "504": "America/Chicago",
	"612": "America/Chicago", "651": "America/Chicago", "816": "America/Chicago",
	"405": "America/Chicago", "901": "America/Chicago",
	// Mountain
	"303": "America/Denver", "720": "America/Denver", "505": "America/Denver",
	"801": "America/Denver", "406": "America/Denver", "915": "America/Denver",
	// Arizona skips DST
	"602": "America/Phoenix", "480": "America/Phoenix", "623": "America/Phoenix",
	"520": "America/Phoenix",
	// Pacific
	"213": "America/Los_Angeles", "310": "America/Los_Angeles", "323": "America/Los_Angeles",
	"415": "America/Los_Angeles", "628": "America/Los_Angeles", "510": "America/Los_Angeles",
	"408": "America/Los_Angeles", "650": "America/Los_Angeles", "619": "America/Los_Angeles",
	"858": "America/Los_Angeles", "916": "America/Los_Angeles", "206": "America/Los_Angeles",
	"253": "America/Los_Angeles", "425": "America/Los_Angeles", "503": "America/Los_Angeles",
	"702": "America/Los_Angeles", "775": "America/Los_Angeles",
	// Alaska / Hawaii
	"907": "America/Anchorage",
	"808": "Pacific/Honolulu",
}

var (
	zoneMu    sync.Mutex
	zoneCache = map[string]*time.Location{}
)

// AreaCode extracts the three-digit NANP area code from a phone number in
// E.164 (+1XXXXXXXXXX), 11-digit (1XXXXXXXXXX), or bare 10-digit form.
func AreaCode(phone string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	switch {
	case len(digits) == 11 && digits[0] == '1':
		return digits[1:4], true
	case len(digits) == 10:
		return digits[:3], true
	}
	return "", false
}

// LocationForPhone resolves the contact's local timezone from the area code.
// ok is false when the number is malformed or the area code is unmapped.
func LocationForPhone(phone string) (*time.Location, bool) {
	code, ok := AreaCode(phone)
	if !ok {
		return nil, false
	}
	name, ok := areaCodeZones[code]
	if !ok {
		return nil, false
	}

	zoneMu.Lock()
	defer zoneMu.Unlock()
	if loc, ok := zoneCache[name]; ok {
		return loc, true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, false
	}
	zoneCache[name] = loc
	return loc, true
}
