package compdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
)

// Location aliases surfaced to the extraction prompt so free-text mentions
// map onto canonical codes.
var LocationExamples = map[string][]string{
	"LAX": {"los angeles", "la", "l.a.", "lax", "santa monica", "venice"},
	"SEA": {"seattle", "bellevue", "redmond", "wa", "washington"},
	"STL": {"st. louis", "st louis", "saint louis", "missouri", "mo"},
	"DUB": {"dublin", "ireland"},
	"SHA": {"shanghai", "china"},
	"SYD": {"sydney", "australia", "nsw"},
	"SIN": {"singapore"},
}

var defaultLocations = []string{"DUB", "LAX", "SEA", "SHA", "SIN", "STL", "SYD"}

var defaultJobFamilies = []string{
	"Engineering", "Executive", "Finance", "HR",
	"Legal", "Marketing", "Operations", "Sales",
}

type compRange struct {
	JobTitle string
	Location string
	Currency string
	Min      float64
	Max      float64
	Range    string
}

type rosterRow struct {
	JobTitle     string
	Location     string
	JobFamily    string
	Compensation float64
	HasComp      bool
}

// Metadata is the catalog of known values used for prompt construction.
type Metadata struct {
	Locations        []string            `json:"locations"`
	JobTitles        []string            `json:"job_titles"`
	JobFamilies      []string            `json:"job_families"`
	LocationExamples map[string][]string `json:"location_examples"`
	JobTitleToFamily map[string]string   `json:"job_title_to_family"`
}

// Store serves market-range and internal-parity lookups from two CSV files.
// Both tables are held in memory; Reload swaps them atomically.
type Store struct {
	compPath   string
	rosterPath string
	logger     *zap.Logger

	mu     sync.RWMutex
	ranges []compRange
	roster []rosterRow
	meta   *Metadata
}

// NewStore loads both tables. A missing file yields an empty table, not an
// error: lookups against it return not-found, which the pipeline reports as
// no_data.
func NewStore(compPath, rosterPath string, logger *zap.Logger) (*Store, error) {
	s := &Store{compPath: compPath, rosterPath: rosterPath, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads both CSV files and rebuilds the metadata catalog.
func (s *Store) Reload() error {
	ranges, err := loadCompRanges(s.compPath)
	if err != nil {
		return fmt.Errorf("load comp ranges: %w", err)
	}
	roster, err := loadRoster(s.rosterPath)
	if err != nil {
		return fmt.Errorf("load employee roster: %w", err)
	}

	s.mu.Lock()
	s.ranges = ranges
	s.roster = roster
	s.meta = nil
	s.mu.Unlock()

	metrics.DataReloads.Inc()
	s.logger.Info("compensation data loaded",
		zap.Int("comp_ranges", len(ranges)),
		zap.Int("roster_rows", len(roster)),
	)
	return nil
}

// MarketCompensation returns the market range for an exact, case-insensitive
// (job title, location) match, or nil when no row matches.
func (s *Store) MarketCompensation(jobTitle, location string) *models.MarketCompensation {
	title := normTitle(jobTitle)
	loc := normLocation(location)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.ranges {
		if normTitle(r.JobTitle) == title && normLocation(r.Location) == loc {
			metrics.DataLookups.WithLabelValues("comp_ranges", "hit").Inc()
			return &models.MarketCompensation{
				Currency: r.Currency,
				Min:      r.Min,
				Max:      r.Max,
				Range:    r.Range,
			}
		}
	}
	metrics.DataLookups.WithLabelValues("comp_ranges", "miss").Inc()
	return nil
}

// InternalParity aggregates roster compensation for an exact, case-insensitive
// (job title, location) match. Rows without a numeric compensation are
// skipped; nil is returned when no usable rows match.
func (s *Store) InternalParity(jobTitle, location string) *models.InternalParity {
	title := normTitle(jobTitle)
	loc := normLocation(location)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out *models.InternalParity
	for _, r := range s.roster {
		if !r.HasComp {
			continue
		}
		if normTitle(r.JobTitle) != title || normLocation(r.Location) != loc {
			continue
		}
		if out == nil {
			out = &models.InternalParity{Min: r.Compensation, Max: r.Compensation, Count: 1}
			continue
		}
		if r.Compensation < out.Min {
			out.Min = r.Compensation
		}
		if r.Compensation > out.Max {
			out.Max = r.Compensation
		}
		out.Count++
	}
	if out == nil {
		metrics.DataLookups.WithLabelValues("employee_roster", "miss").Inc()
		return nil
	}
	metrics.DataLookups.WithLabelValues("employee_roster", "hit").Inc()
	return out
}

// Metadata returns the distinct locations, titles and families across both
// tables, with fallbacks when a table is empty. The result is cached until
// the next Reload.
func (s *Store) Metadata() *Metadata {
	s.mu.RLock()
	if s.meta != nil {
		m := s.meta
		s.mu.RUnlock()
		return m
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta != nil {
		return s.meta
	}

	locSet := map[string]struct{}{}
	titleSet := map[string]struct{}{}
	for _, r := range s.ranges {
		if r.Location != "" {
			locSet[r.Location] = struct{}{}
		}
		if r.JobTitle != "" {
			titleSet[r.JobTitle] = struct{}{}
		}
	}

	famSet := map[string]struct{}{}
	titleToFamily := map[string]string{}
	for _, r := range s.roster {
		if r.JobFamily != "" {
			famSet[r.JobFamily] = struct{}{}
			if r.JobTitle != "" {
				titleToFamily[r.JobTitle] = r.JobFamily
			}
		}
	}

	meta := &Metadata{
		Locations:        setToSorted(locSet, defaultLocations),
		JobTitles:        setToSorted(titleSet, nil),
		JobFamilies:      setToSorted(famSet, defaultJobFamilies),
		LocationExamples: LocationExamples,
		JobTitleToFamily: titleToFamily,
	}
	s.meta = meta
	return meta
}

func setToSorted(set map[string]struct{}, fallback []string) []string {
	if len(set) == 0 {
		return append([]string(nil), fallback...)
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normTitle(s string) string    { return strings.ToLower(strings.TrimSpace(s)) }
func normLocation(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func loadCompRanges(path string) ([]compRange, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}
	col := headerIndex(header)
	out := make([]compRange, 0, len(rows))
	for _, row := range rows {
		r := compRange{
			JobTitle: field(row, col, "Job Title"),
			Location: field(row, col, "Location"),
			Currency: field(row, col, "Currency"),
			Range:    field(row, col, "Compensation Range"),
		}
		if r.Currency == "" {
			r.Currency = "USD"
		}
		r.Min, _ = strconv.ParseFloat(field(row, col, "Min"), 64)
		r.Max, _ = strconv.ParseFloat(field(row, col, "Max"), 64)
		if r.JobTitle == "" || r.Location == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func loadRoster(path string) ([]rosterRow, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}
	col := headerIndex(header)
	out := make([]rosterRow, 0, len(rows))
	for _, row := range rows {
		r := rosterRow{
			JobTitle:  field(row, col, "Job Title"),
			Location:  field(row, col, "Location"),
			JobFamily: field(row, col, "Job Family"),
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(field(row, col, "Compensation"), ",", ""), 64); err == nil {
			r.Compensation = v
			r.HasComp = true
		}
		if r.JobTitle == "" || r.Location == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// readCSV returns (nil, nil, nil) for a missing file.
func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[1:], all[0], nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
