package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var academicYearRe = regexp.MustCompile(`^(\d{4})/(\d{4})$`)

// AcademicYear is a housing cycle such as 2023/2024.
type AcademicYear struct {
	Start int
	End   int
}

// ParseAcademicYear parses a "YYYY/YYYY" string. The second year must follow the first.
func ParseAcademicYear(raw string) (AcademicYear, error) {
	m := academicYearRe.FindStringSubmatch(raw)
	if m == nil {
		return AcademicYear{}, fmt.Errorf("academic year %q does not match YYYY/YYYY", raw)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return AcademicYear{}, fmt.Errorf("academic year %q must span consecutive years", raw)
	}
	return AcademicYear{Start: start, End: end}, nil
}

// String formats the year back to its canonical form.
func (y AcademicYear) String() string {
	return fmt.Sprintf("%04d/%04d", y.Start, y.End)
}

// Next returns the following cycle.
func (y AcademicYear) Next() AcademicYear {
	return AcademicYear{Start: y.Start + 1, End: y.End + 1}
}

// Before reports whether y starts earlier than other.
func (y AcademicYear) Before(other AcademicYear) bool {
	return y.Start < other.Start
}

// AcademicYearOf returns the cycle containing t when cycles begin on the first
// day of startMonth. With an October start, 2023-11-02 falls in 2023/2024 and
// 2024-03-01 still falls in 2023/2024.
func AcademicYearOf(t time.Time, startMonth time.Month) AcademicYear {
	start := t.Year()
	if t.Month() < startMonth {
		start--
	}
	return AcademicYear{Start: start, End: start + 1}
}
