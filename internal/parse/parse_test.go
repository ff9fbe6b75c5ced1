package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAcademicYear(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  AcademicYear
		expectErr bool
	}{
		{name: "Standard year", raw: "2023/2024", expected: AcademicYear{Start: 2023, End: 2024}},
		{name: "Zero padded", raw: "0999/1000", expected: AcademicYear{Start: 999, End: 1000}},
		{name: "Dash separator", raw: "2023-2024", expectErr: true},
		{name: "Short year", raw: "23/24", expectErr: true},
		{name: "Trailing space", raw: "2023/2024 ", expectErr: true},
		{name: "Non consecutive", raw: "2023/2025", expectErr: true},
		{name: "Reversed", raw: "2024/2023", expectErr: true},
		{name: "Empty", raw: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseAcademicYear(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, parsed)
				assert.Equal(t, tc.raw, parsed.String())
			}
		})
	}
}

func TestAcademicYearOf(t *testing.T) {
	testCases := []struct {
		name       string
		at         time.Time
		startMonth time.Month
		expected   string
	}{
		{name: "After cycle start", at: time.Date(2023, 11, 2, 0, 0, 0, 0, time.UTC), startMonth: time.October, expected: "2023/2024"},
		{name: "Before cycle start", at: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), startMonth: time.October, expected: "2023/2024"},
		{name: "First day of cycle", at: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), startMonth: time.October, expected: "2024/2025"},
		{name: "January start", at: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), startMonth: time.January, expected: "2024/2025"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, AcademicYearOf(tc.at, tc.startMonth).String())
		})
	}
}

func TestAcademicYearOrdering(t *testing.T) {
	y := AcademicYear{Start: 2022, End: 2023}
	assert.Equal(t, "2023/2024", y.Next().String())
	assert.True(t, y.Before(y.Next()))
	assert.False(t, y.Next().Before(y))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"klima", "terasa"}, SplitList("klima, terasa"))
	assert.Equal(t, []string{"sopstveno kupatilo", "klima", "klima"}, SplitList("sopstveno kupatilo,,klima,klima"))
}

func TestNormalizeAmenities(t *testing.T) {
	testCases := []struct {
		name     string
		in       []string
		expected []string
	}{
		{name: "Nil input", in: nil, expected: []string{}},
		{name: "Duplicates collapsed", in: []string{"terasa", "klima", "terasa"}, expected: []string{"klima", "terasa"}},
		{name: "Whitespace and empties", in: []string{" klima ", "", "  "}, expected: []string{"klima"}},
		{name: "Case sensitive", in: []string{"Klima", "klima"}, expected: []string{"Klima", "klima"}},
		{name: "Unknown tags kept", in: []string{"sauna", "áram"}, expected: []string{"sauna", "áram"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeAmenities(tc.in))
		})
	}
}
