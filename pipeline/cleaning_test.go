package pipeline

import (
	"testing"
)

func validRecord(school string, year, semester int) Record {
	return Record{
		Year:         year,
		Semester:     semester,
		SchoolID:     school,
		Students:     300,
		Enrollments:  280,
		Teachers:     15,
		AverageGrade: 8.2,
		Urban:        true,
		DropoutRate:  4.5,
	}
}

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner(nil)
	if cleaner == nil {
		t.Fatal("NewDataCleaner returned nil")
	}

	if len(cleaner.rules) != 5 {
		t.Errorf("expected 5 default rules, got %d", len(cleaner.rules))
	}
}

func TestCleaningRules(t *testing.T) {
	tests := []struct {
		name    string
		rule    CleaningRule
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid counts", NewCountValidationRule(), func(r *Record) {}, false},
		{"zero students", NewCountValidationRule(), func(r *Record) { r.Students = 0 }, true},
		{"negative enrollments", NewCountValidationRule(), func(r *Record) { r.Enrollments = -3 }, true},
		{"zero teachers", NewCountValidationRule(), func(r *Record) { r.Teachers = 0 }, true},
		{"grade upper bound", NewGradeRangeRule(), func(r *Record) { r.AverageGrade = 10 }, false},
		{"grade above range", NewGradeRangeRule(), func(r *Record) { r.AverageGrade = 10.5 }, true},
		{"grade below range", NewGradeRangeRule(), func(r *Record) { r.AverageGrade = -0.1 }, true},
		{"zero dropout", NewDropoutRateRule(), func(r *Record) { r.DropoutRate = 0 }, false},
		{"negative dropout", NewDropoutRateRule(), func(r *Record) { r.DropoutRate = -1 }, true},
		{"second semester", NewSemesterRule(), func(r *Record) { r.Semester = 2 }, false},
		{"third semester", NewSemesterRule(), func(r *Record) { r.Semester = 3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRecord("E001", 2022, 1)
			tt.mutate(&record)
			err := tt.rule.Check(&record)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s.Check() error = %v, wantErr %v", tt.rule.Name(), err, tt.wantErr)
			}
		})
	}
}

func TestDuplicateDetectionRule(t *testing.T) {
	rule := NewDuplicateDetectionRule()
	first := validRecord("E001", 2022, 1)
	if err := rule.Check(&first); err != nil {
		t.Fatalf("first record rejected: %v", err)
	}
	other := validRecord("E001", 2022, 2)
	if err := rule.Check(&other); err != nil {
		t.Fatalf("other semester rejected: %v", err)
	}
	dup := validRecord("E001", 2022, 1)
	if err := rule.Check(&dup); err == nil {
		t.Error("expected duplicate to be rejected")
	}
}

func TestDataCleanerClean(t *testing.T) {
	cleaner := NewDataCleaner(nil)

	bad := validRecord("E002", 2022, 1)
	bad.AverageGrade = 12
	records := []Record{
		validRecord("E001", 2022, 1),
		bad,
		validRecord("E002", 2022, 1),
		validRecord("E001", 2022, 1),
	}

	cleaned, issues := cleaner.Clean(records)
	if len(cleaned) != 2 {
		t.Fatalf("expected 2 clean records, got %d", len(cleaned))
	}
	if cleaned[1].SchoolID != "E002" || cleaned[1].AverageGrade != 8.2 {
		t.Errorf("rejected row must not claim the duplicate key, got %+v", cleaned[1])
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Type != "grade_range" || issues[0].Row != 3 || issues[0].Severity != SeverityHigh {
		t.Errorf("unexpected first issue %+v", issues[0])
	}
	if issues[1].Type != "duplicate_detection" || issues[1].Row != 5 || issues[1].Severity != SeverityMedium {
		t.Errorf("unexpected second issue %+v", issues[1])
	}

	stats := cleaner.GetStats()
	if stats.TotalProcessed != 4 || stats.Passed != 2 || stats.Rejected != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Issues["grade_range"] != 1 || stats.Issues["duplicate_detection"] != 1 {
		t.Errorf("unexpected issue counts %v", stats.Issues)
	}
}
