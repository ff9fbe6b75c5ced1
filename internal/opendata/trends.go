package opendata

import (
	"context"
	"math"
	"sort"

	"dorm-open-data-backend/internal/parse"
)

const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// TrendQuery optionally bounds the yearly series. Both ends are inclusive
// academic years such as 2022/2023.
type TrendQuery struct {
	From string
	To   string
}

func (q TrendQuery) bounds() (from, to *parse.AcademicYear, err error) {
	if q.From != "" {
		y, err := parseYear(q.From)
		if err != nil {
			return nil, nil, err
		}
		from = &y
	}
	if q.To != "" {
		y, err := parseYear(q.To)
		if err != nil {
			return nil, nil, err
		}
		to = &y
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, &Error{Kind: KindInvalidRange, Message: "from " + from.String() + " is after to " + to.String()}
	}
	return from, to, nil
}

func parseYear(raw string) (parse.AcademicYear, error) {
	y, err := parse.ParseAcademicYear(raw)
	if err != nil {
		return y, &Error{Kind: KindInvalidValue, Message: "invalid academic year", Err: err}
	}
	return y, nil
}

// YearTrend is one point of the yearly series. Years without data carry zeros.
type YearTrend struct {
	AcademicYear         string  `json:"academic_year"`
	TotalApplications    int     `json:"total_applications"`
	AcceptedApplications int     `json:"accepted_applications"`
	AcceptanceRate       float64 `json:"acceptance_rate"`
	AverageGrade         float64 `json:"average_grade"`
	MinGrade             int     `json:"min_grade"`
	MaxGrade             int     `json:"max_grade"`
}

// DormTrend totals a dormitory across all years.
type DormTrend struct {
	DormitoryID          int64   `json:"dormitory_id"`
	Name                 string  `json:"name"`
	TotalApplications    int     `json:"total_applications"`
	AcceptedApplications int     `json:"accepted_applications"`
	AcceptanceRate       float64 `json:"acceptance_rate"`
}

type TrendSummary struct {
	TotalYears                 int     `json:"total_years"`
	AverageApplicationsPerYear float64 `json:"average_applications_per_year"`
	AverageAcceptedPerYear     float64 `json:"average_accepted_per_year"`
	Slope                      float64 `json:"slope"`
	TrendDirection             string  `json:"trend_direction"`
	PeakYear                   string  `json:"peak_year"`
	PeakAccepted               int     `json:"peak_accepted"`
}

type Trends struct {
	Yearly         []YearTrend  `json:"yearly"`
	ByDormitory    []DormTrend  `json:"by_dormitory"`
	Summary        TrendSummary `json:"summary"`
	SkippedRecords int          `json:"skipped_records"`
}

// ApplicationTrends groups applications by academic year and by dormitory.
func (s *Service) ApplicationTrends(ctx context.Context, q TrendQuery) (*Trends, error) {
	from, to, err := q.bounds()
	if err != nil {
		return nil, err
	}
	snap, err := s.LoadSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return ComputeTrends(snap, from, to, s.opts), nil
}

type yearTotals struct {
	total    int
	accepted int
	gradeSum int
	minGrade int
	maxGrade int
}

func (t *yearTotals) addAccepted(grade int) {
	if t.accepted == 0 || grade < t.minGrade {
		t.minGrade = grade
	}
	if t.accepted == 0 || grade > t.maxGrade {
		t.maxGrade = grade
	}
	t.accepted++
	t.gradeSum += grade
}

// ComputeTrends builds the series from a snapshot. An accepted application
// belongs to its academic year. A pending or rejected application belongs to
// the cycle it was submitted in, derived from its creation time.
func ComputeTrends(snap *Snapshot, from, to *parse.AcademicYear, opts Options) *Trends {
	opts = opts.withDefaults()
	tr := &Trends{Yearly: []YearTrend{}, ByDormitory: []DormTrend{}}

	years := make(map[int]*yearTotals)
	at := func(start int) *yearTotals {
		t, ok := years[start]
		if !ok {
			t = &yearTotals{}
			years[start] = t
		}
		return t
	}

	appIDs := make(map[int64]struct{}, len(snap.Applications))
	for _, a := range snap.Applications {
		appIDs[a.ID] = struct{}{}
	}
	acceptedYears := make(map[int64]parse.AcademicYear, len(snap.Accepted))
	malformed := make(map[int64]struct{})
	for _, a := range snap.Accepted {
		y, err := parse.ParseAcademicYear(a.AcademicYear)
		if err != nil {
			malformed[a.ApplicationID] = struct{}{}
			tr.SkippedRecords++
			continue
		}
		acceptedYears[a.ApplicationID] = y
		t := at(y.Start)
		t.addAccepted(a.Grade)
		if _, ok := appIDs[a.ApplicationID]; !ok {
			t.total++
		}
	}
	for _, a := range snap.Applications {
		if _, bad := malformed[a.ID]; bad {
			continue
		}
		y, accepted := acceptedYears[a.ID]
		if !accepted {
			y = parse.AcademicYearOf(a.CreatedAt.UTC(), opts.CycleStartMonth)
		}
		at(y.Start).total++
	}

	lo, hi, ok := yearRange(years, from, to)
	if ok {
		for start := lo; start <= hi; start++ {
			tr.Yearly = append(tr.Yearly, yearTrend(parse.AcademicYear{Start: start, End: start + 1}, years[start]))
		}
	}
	tr.ByDormitory = dormTrends(snap)
	tr.Summary = summarize(tr.Yearly, opts.TrendTolerance)
	return tr
}

// yearRange spans the observed years, replaced by the requested bounds when
// given. ok is false when there is nothing to report.
func yearRange(years map[int]*yearTotals, from, to *parse.AcademicYear) (lo, hi int, ok bool) {
	for start := range years {
		if !ok || start < lo {
			lo = start
		}
		if !ok || start > hi {
			hi = start
		}
		ok = true
	}
	switch {
	case from != nil && to != nil:
		return from.Start, to.Start, true
	case from != nil:
		lo = from.Start
		if !ok || hi < lo {
			hi = lo
		}
		return lo, hi, true
	case to != nil:
		hi = to.Start
		if !ok || lo > hi {
			lo = hi
		}
		return lo, hi, true
	}
	return lo, hi, ok
}

func yearTrend(y parse.AcademicYear, t *yearTotals) YearTrend {
	yt := YearTrend{AcademicYear: y.String()}
	if t == nil {
		return yt
	}
	yt.TotalApplications = t.total
	yt.AcceptedApplications = t.accepted
	yt.AcceptanceRate = percent(float64(t.accepted), float64(t.total))
	if t.accepted > 0 {
		yt.AverageGrade = mean(float64(t.gradeSum), t.accepted)
		yt.MinGrade = t.minGrade
		yt.MaxGrade = t.maxGrade
	}
	return yt
}

func dormTrends(snap *Snapshot) []DormTrend {
	roomDorm := make(map[int64]int64, len(snap.Rooms))
	for _, r := range snap.Rooms {
		roomDorm[r.ID] = r.DormitoryID
	}
	byDorm := make(map[int64]*DormTrend, len(snap.Dormitories))
	out := make([]DormTrend, 0, len(snap.Dormitories))
	for _, d := range snap.Dormitories {
		byDorm[d.ID] = &DormTrend{DormitoryID: d.ID, Name: d.Name}
	}
	appIDs := make(map[int64]struct{}, len(snap.Applications))
	for _, a := range snap.Applications {
		appIDs[a.ID] = struct{}{}
		if dt := byDorm[roomDorm[a.RoomID]]; dt != nil {
			dt.TotalApplications++
		}
	}
	for _, a := range snap.Accepted {
		dt := byDorm[roomDorm[a.RoomID]]
		if dt == nil {
			continue
		}
		dt.AcceptedApplications++
		if _, ok := appIDs[a.ApplicationID]; !ok {
			dt.TotalApplications++
		}
	}
	for _, dt := range byDorm {
		dt.AcceptanceRate = percent(float64(dt.AcceptedApplications), float64(dt.TotalApplications))
		out = append(out, *dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DormitoryID < out[j].DormitoryID })
	return out
}

func summarize(yearly []YearTrend, tolerance float64) TrendSummary {
	sum := TrendSummary{TotalYears: len(yearly), TrendDirection: TrendStable}
	if len(yearly) == 0 {
		return sum
	}
	counts := make([]float64, len(yearly))
	var apps, accepted float64
	for i, y := range yearly {
		counts[i] = float64(y.AcceptedApplications)
		apps += float64(y.TotalApplications)
		accepted += counts[i]
		if i == 0 || y.AcceptedApplications > sum.PeakAccepted {
			sum.PeakYear = y.AcademicYear
			sum.PeakAccepted = y.AcceptedApplications
		}
	}
	sum.AverageApplicationsPerYear = mean(apps, len(yearly))
	sum.AverageAcceptedPerYear = mean(accepted, len(yearly))
	sum.Slope, sum.TrendDirection = classifyTrend(counts, tolerance)
	return sum
}

// classifyTrend reports the least-squares slope of the yearly accepted counts
// and compares the latest count with the level a line fitted through the
// earlier years reaches in the year before it. A latest count more than
// tolerance percent above that level is increasing, more than tolerance
// percent below it decreasing.
func classifyTrend(counts []float64, tolerance float64) (float64, string) {
	n := len(counts)
	if n < 2 {
		return 0, TrendStable
	}
	slope, _ := fitLine(counts)

	history := counts[:n-1]
	hSlope, hIntercept := fitLine(history)
	level := math.Max(hIntercept+hSlope*float64(len(history)-1), 0)
	latest := counts[n-1]
	if level == 0 {
		if latest > 0 {
			return round2(slope), TrendIncreasing
		}
		return round2(slope), TrendStable
	}
	change := (latest - level) / level * 100
	switch {
	case change > tolerance:
		return round2(slope), TrendIncreasing
	case change < -tolerance:
		return round2(slope), TrendDecreasing
	default:
		return round2(slope), TrendStable
	}
}

// fitLine returns slope and intercept of the least-squares line through
// (i, ys[i]). A single point gives a flat line.
func fitLine(ys []float64) (slope, intercept float64) {
	n := len(ys)
	var yMean float64
	for _, y := range ys {
		yMean += y
	}
	yMean /= float64(n)
	if n < 2 {
		return 0, yMean
	}

	xMean := float64(n-1) / 2
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	slope = num / den
	return slope, yMean - slope*xMean
}
