package runner

import (
	"quickeval/internal/portal"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSelection(t *testing.T) {
	table := []struct {
		input    string
		total    int
		expected Selection
	}{
		{input: "", total: 5, expected: Selection{}},
		{input: "   ", total: 5, expected: Selection{}},
		{input: "0", total: 5, expected: Selection{}},
		{input: "a", total: 3, expected: Selection{All: true, Indices: []int{0, 1, 2}}},
		{input: " a ", total: 2, expected: Selection{All: true, Indices: []int{0, 1}}},
		{input: "1 3", total: 5, expected: Selection{Indices: []int{0, 2}}},
		{input: "3 1", total: 5, expected: Selection{Indices: []int{2, 0}}},
		{input: "1 3 9", total: 5, expected: Selection{Indices: []int{0, 2}, Invalid: []string{"9"}}},
		{input: "2 x -1 0", total: 5, expected: Selection{Indices: []int{1}, Invalid: []string{"x", "-1", "0"}}},
		{input: "2 2\t2", total: 5, expected: Selection{Indices: []int{1}}},
		{input: "1", total: 0, expected: Selection{Invalid: []string{"1"}}},
	}

	for _, row := range table {
		got := ParseSelection(row.input, row.total)
		if diff := cmp.Diff(row.expected, got); diff != "" {
			t.Errorf("ParseSelection(%q, %d): %s", row.input, row.total, diff)
		}
	}
}

func TestMatchNames(t *testing.T) {
	records := []portal.Record{
		{CourseSessionId: "k1", CourseName: "高等数学(上)"},
		{CourseSessionId: "k2", CourseName: "大学物理"},
		{CourseSessionId: "k3", CourseName: "Linear Algebra"},
	}

	table := []struct {
		queries  []string
		expected Selection
	}{
		{queries: []string{"大学物理"}, expected: Selection{Indices: []int{1}}},
		{queries: []string{"高等数学"}, expected: Selection{Indices: []int{0}}},
		{queries: []string{"Linear Algebr"}, expected: Selection{Indices: []int{2}}},
		{queries: []string{"Linear Algerba"}, expected: Selection{Indices: []int{2}}},
		{queries: []string{"linear  ALGEBRA"}, expected: Selection{Indices: []int{2}}},
		{queries: []string{"大学物理", "物理"}, expected: Selection{Indices: []int{1}}},
		{queries: []string{"Organic Chemistry"}, expected: Selection{Invalid: []string{"Organic Chemistry"}}},
		{queries: []string{"", " "}, expected: Selection{}},
	}

	for _, row := range table {
		got := MatchNames(records, row.queries)
		if diff := cmp.Diff(row.expected, got); diff != "" {
			t.Errorf("MatchNames(%v): %s", row.queries, diff)
		}
	}
}
