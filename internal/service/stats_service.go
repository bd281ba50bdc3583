package service

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/estimate"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// StatsService aggregates results into pie, histogram and progress views.
type StatsService struct {
	db       *sqlx.DB
	plans    *repository.PlanRepository
	tests    *repository.TestRepository
	results  *repository.ResultRepository
	cases    *repository.CaseRepository
	statuses *repository.StatusRepository
	projects *repository.ProjectRepository
	labels   *repository.LabelRepository
	logger   *slog.Logger
}

// NewStatsService creates a statistics service.
func NewStatsService(db *sqlx.DB, plans *repository.PlanRepository, tests *repository.TestRepository,
	results *repository.ResultRepository, cases *repository.CaseRepository,
	statuses *repository.StatusRepository, projects *repository.ProjectRepository,
	labels *repository.LabelRepository, logger *slog.Logger) *StatsService {
	return &StatsService{
		db:       db,
		plans:    plans,
		tests:    tests,
		results:  results,
		cases:    cases,
		statuses: statuses,
		projects: projects,
		labels:   labels,
		logger:   logger,
	}
}

// PieSlice is one status bucket of a plan's test distribution.
type PieSlice struct {
	StatusID int64   `json:"id"`
	Label    string  `json:"label"`
	Color    string  `json:"color"`
	Value    int64   `json:"value"`
	Percent  float64 `json:"percent"`
	Estimate float64 `json:"estimates"`
	// EmptyEstimates counts the bucket's tests whose case carries no
	// estimate.
	EmptyEstimates int64 `json:"empty_estimates"`
}

// PieResult is the pie statistics payload. Every catalog status appears,
// zero-valued when no test sits in it.
type PieResult struct {
	Slices []PieSlice `json:"slices"`
}

// Pie aggregates the plan's tests by their current status, counting tests
// without any result under the synthetic Untested status. rootOnly restricts
// the aggregation to the plan's direct tests instead of the whole subtree.
// Estimates sum the owning cases' estimates per slice, expressed in the given
// period.
func (s *StatsService) Pie(ctx context.Context, planID int64, rootOnly bool,
	labelFilter model.LabelFilter, period string) (*PieResult, error) {
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	planIDs, err := s.pieScope(ctx, planID, rootOnly)
	if err != nil {
		return nil, err
	}
	tests, err := s.tests.ListByPlans(ctx, planIDs, false)
	if err != nil {
		return nil, err
	}
	return s.pieFromTests(ctx, plan.ProjectID, tests, labelFilter, period)
}

// PieProject aggregates every live test of the project into one pie.
func (s *StatsService) PieProject(ctx context.Context, projectID int64,
	labelFilter model.LabelFilter, period string) (*PieResult, error) {
	plans, err := s.plans.List(ctx, model.ListFilter{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	planIDs := make([]int64, len(plans))
	for i, plan := range plans {
		planIDs[i] = plan.ID
	}
	tests, err := s.tests.ListByPlans(ctx, planIDs, false)
	if err != nil {
		return nil, err
	}
	return s.pieFromTests(ctx, projectID, tests, labelFilter, period)
}

// pieScope resolves the plan ids a pie aggregates over.
func (s *StatsService) pieScope(ctx context.Context, planID int64, rootOnly bool) ([]int64, error) {
	if rootOnly {
		return []int64{planID}, nil
	}
	return s.plans.DescendantIDs(ctx, planID)
}

func (s *StatsService) pieFromTests(ctx context.Context, projectID int64, tests []*model.Test,
	labelFilter model.LabelFilter, period string) (*PieResult, error) {
	tests, err := s.filterTestsByLabels(ctx, tests, labelFilter)
	if err != nil {
		return nil, err
	}

	caseIDs := make([]int64, len(tests))
	for i, t := range tests {
		caseIDs[i] = t.CaseID
	}
	cases, err := s.cases.ListByIDs(ctx, caseIDs)
	if err != nil {
		return nil, err
	}
	estimates := make(map[int64]*int64, len(cases))
	for _, c := range cases {
		estimates[c.ID] = c.Estimate
	}

	counts := make(map[int64]int64)
	estimateSums := make(map[int64]int64)
	emptyByStatus := make(map[int64]int64)
	for _, t := range tests {
		statusID := model.UntestedStatusID
		if t.LastStatusID != nil {
			statusID = *t.LastStatusID
		}
		counts[statusID]++
		if est := estimates[t.CaseID]; est != nil {
			estimateSums[statusID] += *est
		} else {
			emptyByStatus[statusID]++
		}
	}

	catalog, err := s.statusCatalog(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	seedCatalogCounts(counts, catalog)

	total := int64(len(tests))
	result := &PieResult{Slices: []PieSlice{}}
	for _, statusID := range orderStatuses(counts, project.Settings.StatusOrder) {
		status, ok := catalog[statusID]
		if !ok {
			status = model.UntestedStatus()
		}
		slice := PieSlice{
			StatusID:       statusID,
			Label:          status.Name,
			Color:          status.Color,
			Value:          counts[statusID],
			Estimate:       estimate.ToPeriod(estimateSums[statusID], period),
			EmptyEstimates: emptyByStatus[statusID],
		}
		if total > 0 {
			slice.Percent = float64(counts[statusID]) * 100 / float64(total)
		}
		result.Slices = append(result.Slices, slice)
	}
	return result, nil
}

// seedCatalogCounts guarantees a bucket for every catalog status, so the pie
// reports zero-valued slices instead of dropping them.
func seedCatalogCounts(counts map[int64]int64, catalog map[int64]*model.ResultStatus) {
	for id := range catalog {
		if _, ok := counts[id]; !ok {
			counts[id] = 0
		}
	}
}

// HistogramBar is one status segment of a histogram bucket.
type HistogramBar struct {
	StatusID int64  `json:"id"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Count    int64  `json:"count"`
}

// HistogramPoint is one bucket of a histogram, carrying a bar per catalog
// status so stacks line up across buckets.
type HistogramPoint struct {
	Point string         `json:"point"`
	Bars  []HistogramBar `json:"bars"`
}

// HistogramByDate buckets the plan subtree's results per day in [start, end],
// zero-filling empty days.
func (s *StatsService) HistogramByDate(ctx context.Context, planID int64,
	start, end time.Time, labelFilter model.LabelFilter) ([]HistogramPoint, error) {
	if end.Before(start) {
		return nil, apperr.New(apperr.CodeDateRange, "end date precedes start date")
	}
	catalog, statusIDs, err := s.histogramStatuses(ctx, planID)
	if err != nil {
		return nil, err
	}
	results, err := s.planResults(ctx, planID, labelFilter)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]map[int64]int64)
	for _, res := range results {
		day := res.CreatedAt.Format("2006-01-02")
		if byDay[day] == nil {
			byDay[day] = make(map[int64]int64)
		}
		byDay[day][res.StatusID]++
	}

	var points []HistogramPoint
	for day := start.Truncate(24 * time.Hour); !day.After(end); day = day.Add(24 * time.Hour) {
		key := day.Format("2006-01-02")
		points = append(points, HistogramPoint{
			Point: key,
			Bars:  histogramBars(byDay[key], statusIDs, catalog),
		})
	}
	return points, nil
}

// HistogramByAttribute buckets the plan subtree's results by the value each
// carries under the attribute key. Results missing the key are skipped.
// Buckets sort numerically when every key parses as a number, else as
// strings.
func (s *StatsService) HistogramByAttribute(ctx context.Context, planID int64,
	attribute string, labelFilter model.LabelFilter) ([]HistogramPoint, error) {
	if attribute == "" {
		return nil, apperr.Validation("attribute is required")
	}
	catalog, statusIDs, err := s.histogramStatuses(ctx, planID)
	if err != nil {
		return nil, err
	}
	results, err := s.planResults(ctx, planID, labelFilter)
	if err != nil {
		return nil, err
	}

	byValue := make(map[string]map[int64]int64)
	for _, res := range results {
		raw, ok := res.Attributes[attribute]
		if !ok {
			continue
		}
		value := attributeBucket(raw)
		if byValue[value] == nil {
			byValue[value] = make(map[int64]int64)
		}
		byValue[value][res.StatusID]++
	}

	keys := make([]string, 0, len(byValue))
	for key := range byValue {
		keys = append(keys, key)
	}
	sortAttributeKeys(keys)

	points := make([]HistogramPoint, len(keys))
	for i, key := range keys {
		points[i] = HistogramPoint{Point: key, Bars: histogramBars(byValue[key], statusIDs, catalog)}
	}
	return points, nil
}

// histogramStatuses resolves the status axis for a plan's histograms: the
// project catalog minus Untested, ascending by id. Stored results always
// carry a real status.
func (s *StatsService) histogramStatuses(ctx context.Context, planID int64) (map[int64]*model.ResultStatus, []int64, error) {
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := s.statusCatalog(ctx, plan.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, 0, len(catalog))
	for id := range catalog {
		if id == model.UntestedStatusID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return catalog, ids, nil
}

// histogramBars expands one bucket's counts to a bar per catalog status,
// zero-filling statuses the bucket never saw.
func histogramBars(counts map[int64]int64, statusIDs []int64, catalog map[int64]*model.ResultStatus) []HistogramBar {
	bars := make([]HistogramBar, len(statusIDs))
	for i, id := range statusIDs {
		bars[i] = HistogramBar{
			StatusID: id,
			Label:    catalog[id].Name,
			Color:    catalog[id].Color,
			Count:    counts[id],
		}
	}
	return bars
}

// Progress reports per root plan of the project: total tests, tests that
// received results inside [start, end], and tests tested overall.
func (s *StatsService) Progress(ctx context.Context, projectID int64, start, end time.Time) ([]*model.ProjectProgress, error) {
	if end.Before(start) {
		return nil, apperr.New(apperr.CodeDateRange, "end date precedes start date")
	}
	roots, err := s.plans.List(ctx, model.ListFilter{ProjectID: projectID, ParentIsNull: true})
	if err != nil {
		return nil, err
	}

	var progress []*model.ProjectProgress
	for _, root := range roots {
		planIDs, err := s.plans.DescendantIDs(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		tests, err := s.tests.ListByPlans(ctx, planIDs, false)
		if err != nil {
			return nil, err
		}
		testIDs := make([]int64, len(tests))
		for i, t := range tests {
			testIDs[i] = t.ID
		}
		results, err := s.results.ListByTests(ctx, testIDs)
		if err != nil {
			return nil, err
		}

		testedPeriod := make(map[int64]bool)
		testedTotal := make(map[int64]bool)
		for _, res := range results {
			testedTotal[res.TestID] = true
			if !res.CreatedAt.Before(start) && !res.CreatedAt.After(end) {
				testedPeriod[res.TestID] = true
			}
		}
		progress = append(progress, &model.ProjectProgress{
			PlanID:              root.ID,
			Title:               root.Title(),
			TestsTotal:          int64(len(tests)),
			TestsProgressPeriod: int64(len(testedPeriod)),
			TestsProgressTotal:  int64(len(testedTotal)),
		})
	}
	return progress, nil
}

// PlanLabels lists the labels attached to cases tested under the plan
// subtree, for filter population on the plan views.
func (s *StatsService) PlanLabels(ctx context.Context, planID int64) ([]*model.Label, error) {
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	planIDs, err := s.plans.DescendantIDs(ctx, planID)
	if err != nil {
		return nil, err
	}
	tests, err := s.tests.ListByPlans(ctx, planIDs, true)
	if err != nil {
		return nil, err
	}
	caseIDs := make([]int64, 0, len(tests))
	seen := make(map[int64]bool, len(tests))
	for _, t := range tests {
		if !seen[t.CaseID] {
			seen[t.CaseID] = true
			caseIDs = append(caseIDs, t.CaseID)
		}
	}
	attached, err := s.labels.AttachedLabels(ctx, model.KindCase, caseIDs)
	if err != nil {
		return nil, err
	}
	used := make(map[int64]bool)
	for _, labelIDs := range attached {
		for id := range labelIDs {
			used[id] = true
		}
	}
	all, err := s.labels.List(ctx, plan.ProjectID)
	if err != nil {
		return nil, err
	}
	labels := make([]*model.Label, 0, len(used))
	for _, label := range all {
		if used[label.ID] {
			labels = append(labels, label)
		}
	}
	return labels, nil
}

func (s *StatsService) planResults(ctx context.Context, planID int64, labelFilter model.LabelFilter) ([]*model.TestResult, error) {
	planIDs, err := s.plans.DescendantIDs(ctx, planID)
	if err != nil {
		return nil, err
	}
	tests, err := s.tests.ListByPlans(ctx, planIDs, false)
	if err != nil {
		return nil, err
	}
	tests, err = s.filterTestsByLabels(ctx, tests, labelFilter)
	if err != nil {
		return nil, err
	}
	testIDs := make([]int64, len(tests))
	for i, t := range tests {
		testIDs[i] = t.ID
	}
	return s.results.ListByTests(ctx, testIDs)
}

// filterTestsByLabels keeps the tests whose case matches the label filter.
func (s *StatsService) filterTestsByLabels(ctx context.Context, tests []*model.Test, f model.LabelFilter) ([]*model.Test, error) {
	if f.Empty() {
		return tests, nil
	}
	caseIDs := make([]int64, len(tests))
	for i, t := range tests {
		caseIDs[i] = t.CaseID
	}
	attached, err := s.labels.AttachedLabels(ctx, model.KindCase, caseIDs)
	if err != nil {
		return nil, err
	}
	filtered := tests[:0]
	for _, t := range tests {
		if f.Match(attached[t.CaseID]) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (s *StatsService) statusCatalog(ctx context.Context, projectID int64) (map[int64]*model.ResultStatus, error) {
	statuses, err := s.statuses.Catalog(ctx, projectID)
	if err != nil {
		return nil, err
	}
	catalog := make(map[int64]*model.ResultStatus, len(statuses)+1)
	catalog[model.UntestedStatusID] = model.UntestedStatus()
	for _, st := range statuses {
		catalog[st.ID] = st
	}
	return catalog, nil
}

// orderStatuses sorts the seen status ids by the project's status order,
// unordered statuses after ordered ones by id, Untested always last.
func orderStatuses(counts map[int64]int64, order map[int64]int) []int64 {
	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a == model.UntestedStatusID || b == model.UntestedStatusID {
			return b == model.UntestedStatusID
		}
		posA, okA := order[a]
		posB, okB := order[b]
		switch {
		case okA && okB:
			return posA < posB
		case okA:
			return true
		case okB:
			return false
		default:
			return a < b
		}
	})
	return ids
}

func attributeBucket(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// sortAttributeKeys orders numerically when every key parses as a number,
// lexicographically otherwise.
func sortAttributeKeys(keys []string) {
	numeric := true
	values := make(map[string]float64, len(keys))
	for _, key := range keys {
		f, err := strconv.ParseFloat(key, 64)
		if err != nil {
			numeric = false
			break
		}
		values[key] = f
	}
	if numeric {
		sort.Slice(keys, func(i, j int) bool { return values[keys[i]] < values[keys[j]] })
		return
	}
	sort.Strings(keys)
}
