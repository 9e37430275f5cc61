package analysis

import (
	"strings"
	"unicode"
)

// Category is one of the civic issue categories a report can be filed under.
type Category string

const (
	CategoryPothole         Category = "Pothole"
	CategoryStreetlightOut  Category = "Streetlight Out"
	CategoryTrashOverflow   Category = "Trash Overflow"
	CategoryGraffiti        Category = "Graffiti"
	CategoryWaterLeak       Category = "Water Leak"
	CategoryTrafficSignal   Category = "Traffic Signal"
	CategoryParkMaintenance Category = "Park Maintenance"

	// NoOverride means the label did not match any category; the
	// citizen-submitted category stays.
	NoOverride Category = ""
)

// categoryKeywords is checked in order; the first category with a matching
// keyword wins.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryPothole, []string{"pothole", "pot hole", "asphalt", "crack", "road damage", "sinkhole"}},
	{CategoryStreetlightOut, []string{"streetlight", "street light", "street lamp", "lamp post", "lamppost", "streetlight out"}},
	{CategoryTrashOverflow, []string{"trash", "garbage", "waste", "litter", "rubbish", "dumpster", "trash overflow"}},
	{CategoryGraffiti, []string{"graffiti", "street art", "spray paint", "vandalism"}},
	{CategoryWaterLeak, []string{"water leak", "leak", "burst pipe", "flooding", "hydrant"}},
	{CategoryTrafficSignal, []string{"traffic signal", "traffic light", "stop light", "stoplight"}},
	{CategoryParkMaintenance, []string{"park maintenance", "park", "playground", "bench", "overgrown", "lawn"}},
}

// Categories lists every known category in matching order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryKeywords))
	for _, ck := range categoryKeywords {
		out = append(out, ck.category)
	}
	return out
}

// MapCategory matches a normalized label against the category keyword table,
// case-insensitively. Keywords match on word boundaries (a trailing plural "s"
// is allowed) so "parking" is not a park and "highway" does not read "high".
func MapCategory(label string) Category {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" || l == UnknownLabel {
		return NoOverride
	}
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if containsWord(l, kw) {
				return ck.category
			}
		}
	}
	return NoOverride
}

func containsWord(s, kw string) bool {
	for from := 0; from <= len(s)-len(kw); {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	return i == 0 || !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i == len(s) || !isWordByte(s[i]) {
		return true
	}
	if s[i] == 's' && (i+1 == len(s) || !isWordByte(s[i+1])) {
		return true
	}
	return false
}

func isWordByte(b byte) bool {
	return b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}
