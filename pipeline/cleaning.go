package pipeline

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// CleaningRule rejects a record by returning an error.
type CleaningRule interface {
	Check(*Record) error
	Name() string
}

// QualityIssue is one rejected row.
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Row      int    `json:"row"`
	SchoolID string `json:"school_id"`
}

type CleaningStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Issues         map[string]int `json:"issues"`
}

// DataCleaner runs its rules in order; a record stops at the first rule it
// fails.
type DataCleaner struct {
	rules  []CleaningRule
	stats  CleaningStats
	logger *zap.Logger
}

func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int)},
	}
	cleaner.AddRule(NewCountValidationRule())
	cleaner.AddRule(NewGradeRangeRule())
	cleaner.AddRule(NewDropoutRateRule())
	cleaner.AddRule(NewSemesterRule())
	// last, so only valid rows claim a key
	cleaner.AddRule(NewDuplicateDetectionRule())
	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("Added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns the records that passed every rule and one issue per
// rejected record. Row numbers assume a header line.
func (dc *DataCleaner) Clean(records []Record) ([]Record, []QualityIssue) {
	var cleaned []Record
	var issues []QualityIssue
	for i := range records {
		record := records[i]
		dc.stats.TotalProcessed++
		if issue, rejected := dc.check(&record, i+2); rejected {
			dc.stats.Rejected++
			dc.stats.Issues[issue.Type]++
			issues = append(issues, issue)
			continue
		}
		dc.stats.Passed++
		cleaned = append(cleaned, record)
	}
	if len(issues) > 0 {
		dc.logger.Warn("Rejected records during cleaning",
			zap.Int("rejected", len(issues)),
			zap.Any("by_rule", dc.stats.Issues))
	}
	return cleaned, issues
}

func (dc *DataCleaner) check(record *Record, row int) (QualityIssue, bool) {
	for _, rule := range dc.rules {
		if err := rule.Check(record); err != nil {
			return QualityIssue{
				Type:     rule.Name(),
				Severity: severityOf(rule),
				Message:  err.Error(),
				Row:      row,
				SchoolID: record.SchoolID,
			}, true
		}
	}
	return QualityIssue{}, false
}

func (dc *DataCleaner) GetStats() CleaningStats {
	stats := dc.stats
	stats.Issues = make(map[string]int, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

func severityOf(rule CleaningRule) string {
	if _, ok := rule.(*DuplicateDetectionRule); ok {
		return SeverityMedium
	}
	return SeverityHigh
}

// ============ rules ============

// CountValidationRule requires positive student, enrollment and teacher counts.
type CountValidationRule struct{}

func NewCountValidationRule() *CountValidationRule {
	return &CountValidationRule{}
}

func (r *CountValidationRule) Name() string {
	return "count_validation"
}

func (r *CountValidationRule) Check(record *Record) error {
	switch {
	case record.Students <= 0:
		return fmt.Errorf("non-positive student count: %v", record.Students)
	case record.Enrollments <= 0:
		return fmt.Errorf("non-positive enrollment count: %v", record.Enrollments)
	case record.Teachers <= 0:
		return fmt.Errorf("non-positive teacher count: %v", record.Teachers)
	}
	return nil
}

type GradeRangeRule struct {
	Min float64
	Max float64
}

func NewGradeRangeRule() *GradeRangeRule {
	return &GradeRangeRule{Min: 0, Max: 10}
}

func (r *GradeRangeRule) Name() string {
	return "grade_range"
}

func (r *GradeRangeRule) Check(record *Record) error {
	if record.AverageGrade < r.Min || record.AverageGrade > r.Max {
		return fmt.Errorf("average grade %v outside [%v, %v]", record.AverageGrade, r.Min, r.Max)
	}
	return nil
}

type DropoutRateRule struct{}

func NewDropoutRateRule() *DropoutRateRule {
	return &DropoutRateRule{}
}

func (r *DropoutRateRule) Name() string {
	return "dropout_rate"
}

func (r *DropoutRateRule) Check(record *Record) error {
	if record.DropoutRate < 0 {
		return fmt.Errorf("negative dropout rate: %v", record.DropoutRate)
	}
	return nil
}

type SemesterRule struct{}

func NewSemesterRule() *SemesterRule {
	return &SemesterRule{}
}

func (r *SemesterRule) Name() string {
	return "semester"
}

func (r *SemesterRule) Check(record *Record) error {
	if record.Semester != 1 && record.Semester != 2 {
		return fmt.Errorf("semester must be 1 or 2, got %d", record.Semester)
	}
	return nil
}

type recordKey struct {
	school   string
	year     int
	semester int
}

// DuplicateDetectionRule keeps the first record per school and semester.
type DuplicateDetectionRule struct {
	seen map[recordKey]bool
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{seen: make(map[recordKey]bool)}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Check(record *Record) error {
	key := recordKey{school: record.SchoolID, year: record.Year, semester: record.Semester}
	if r.seen[key] {
		return fmt.Errorf("duplicate record for school %s in %d-%d", record.SchoolID, record.Year, record.Semester)
	}
	r.seen[key] = true
	return nil
}
