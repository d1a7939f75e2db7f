package runner

import (
	"quickeval/internal/portal"
	"regexp"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

// AllKeyword selects every pending record.
const AllKeyword = "a"

// Selection is the ordered set of catalog positions (0-based) to submit.
type Selection struct {
	All     bool
	Indices []int
	// Invalid holds every entry of the input that could not be resolved.
	Invalid []string
}

func SelectAll(total int) Selection {
	indices := make([]int, total)
	for i := range indices {
		indices[i] = i
	}
	return Selection{All: true, Indices: indices}
}

// ParseSelection reads a whitespace separated list of 1-based record numbers.
// "" and "0" select nothing, "a" selects every record in catalog order. Out of
// range and non-numeric entries are kept in Invalid, repeated numbers are only
// selected once.
func ParseSelection(input string, total int) Selection {
	input = strings.TrimSpace(input)
	switch input {
	case "", "0":
		return Selection{}
	case AllKeyword:
		return SelectAll(total)
	}

	var sel Selection
	seen := make(map[int]bool)
	for _, entry := range strings.Fields(input) {
		n, err := strconv.Atoi(entry)
		if err != nil || n < 1 || n > total {
			sel.Invalid = append(sel.Invalid, entry)
			continue
		}
		if seen[n-1] {
			continue
		}
		seen[n-1] = true
		sel.Indices = append(sel.Indices, n-1)
	}
	return sel
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

func normalizeName(name string) string {
	name = strings.ToLower(name)
	return whitespaceRegex.ReplaceAllString(name, "")
}

// MinNameSimilarity is the Jaro-Winkler similarity a course name must reach to
// match a query.
const MinNameSimilarity = 0.85

// MatchNames selects records by course name, ignoring case and whitespace. A
// query matches the record whose name contains it, or failing that the most
// similar name above MinNameSimilarity. Queries that match nothing are kept in
// Invalid.
func MatchNames(records []portal.Record, queries []string) Selection {
	var sel Selection
	seen := make(map[int]bool)
	for _, query := range queries {
		normalized := normalizeName(query)
		if normalized == "" {
			continue
		}

		best := -1
		var bestSimilarity float64
		for i, record := range records {
			name := normalizeName(record.CourseName)
			similarity := matchr.JaroWinkler(normalized, name, false)
			if strings.Contains(name, normalized) {
				similarity = 1
			}
			if similarity > bestSimilarity {
				bestSimilarity = similarity
				best = i
			}
		}

		if best < 0 || bestSimilarity < MinNameSimilarity {
			sel.Invalid = append(sel.Invalid, strings.TrimSpace(query))
			continue
		}
		if seen[best] {
			continue
		}
		seen[best] = true
		sel.Indices = append(sel.Indices, best)
	}
	return sel
}
