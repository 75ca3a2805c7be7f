package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Free-text patterns shared by the extractors. Card markup changes often;
// the numbers inside the text do not.
var (
	reFloat      = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	reAreaM2     = regexp.MustCompile(`(\d+[,.]?\d*)\s*м²`)
	reFloors     = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	reFloorsEt   = regexp.MustCompile(`(?i)(\d+)\s*/\s*(\d+)\s*эт`)
	reRooms      = regexp.MustCompile(`(?i)(студия|(\d+)[-\s]*к)`)
	reTrailingID = regexp.MustCompile(`/(\d+)/?$`)
	reTailID     = regexp.MustCompile(`[_/](\d+)/?(?:\?.*)?$`)
)

// parseInt strips everything but digits and parses the rest.
// "55 000 ₽" -> 55000.
func parseInt(s string) *int64 {
	if s == "" {
		return nil
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseFloat accepts a comma decimal separator. "45,5" -> 45.5.
func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	m := reFloat.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseAreaM2 finds a unit-suffixed area ("45,5 м²") in free text.
func parseAreaM2(s string) *float64 {
	m := reAreaM2.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return parseFloat(m[1])
}

// parseFloors extracts an "X/Y" floor pattern. When requireUnit is set the
// pattern must be followed by the floor unit ("эт"), which avoids matching
// unrelated fractions in dense card text. A floor above the building height
// is treated as a misparse and dropped.
func parseFloors(s string, requireUnit bool) (floor, total *int) {
	re := reFloors
	if requireUnit {
		re = reFloorsEt
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil, nil
	}
	f, err1 := strconv.Atoi(m[1])
	t, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || f > t {
		return nil, nil
	}
	return &f, &t
}

// parseRooms extracts a room count from "2-к", "3к" or the studio marker;
// studios map to 0.
func parseRooms(s string) *int {
	m := reRooms.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(m[1]), "студ") {
		zero := 0
		return &zero
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	return &n
}

// externalIDFromURL pulls the numeric listing id from a URL, either strictly
// as the last path segment ("/12345/") or as a trailing token delimited by
// "/" or "_" ("..._1234567890", the avito slug style).
func externalIDFromURL(url string, trailingOnly bool) string {
	if url == "" {
		return ""
	}
	re := reTailID
	if trailingOnly {
		re = reTrailingID
	}
	m := re.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}
