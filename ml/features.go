package ml

import "fmt"

// SchoolFeatures is the raw profile of a school as reported for one period.
type SchoolFeatures struct {
	Students     float64
	Enrollments  float64
	Teachers     float64
	AverageGrade float64
	Urban        bool
}

func (f SchoolFeatures) StudentTeacherRatio() float64 {
	return SafeRatio(f.Students, f.Teachers)
}

func (f SchoolFeatures) EnrollmentRate() float64 {
	return SafeRatio(f.Enrollments, f.Students)
}

// Feature names as persisted in the classifier metadata.
const (
	FeatureStudents            = "cantidad_alumnos"
	FeatureEnrollments         = "numero_inscripciones"
	FeatureTeachers            = "numero_maestros"
	FeatureAverageGrade        = "promedio_calificaciones"
	FeatureUrban               = "esUrbana"
	FeatureStudentTeacherRatio = "student_teacher_ratio"
	FeatureEnrollmentRate      = "enrollment_rate"
)

// FeatureExtractor pulls one named column out of a school profile.
type FeatureExtractor struct {
	Name  string
	Value func(SchoolFeatures) float64
}

var extractors = map[string]FeatureExtractor{
	FeatureStudents:            {FeatureStudents, func(f SchoolFeatures) float64 { return f.Students }},
	FeatureEnrollments:         {FeatureEnrollments, func(f SchoolFeatures) float64 { return f.Enrollments }},
	FeatureTeachers:            {FeatureTeachers, func(f SchoolFeatures) float64 { return f.Teachers }},
	FeatureAverageGrade:        {FeatureAverageGrade, func(f SchoolFeatures) float64 { return f.AverageGrade }},
	FeatureUrban:               {FeatureUrban, func(f SchoolFeatures) float64 { return boolToFloat(f.Urban) }},
	FeatureStudentTeacherRatio: {FeatureStudentTeacherRatio, SchoolFeatures.StudentTeacherRatio},
	FeatureEnrollmentRate:      {FeatureEnrollmentRate, SchoolFeatures.EnrollmentRate},
}

// FeatureNames is the column order used when no metadata says otherwise.
func FeatureNames() []string {
	return []string{
		FeatureStudents,
		FeatureEnrollments,
		FeatureTeachers,
		FeatureAverageGrade,
		FeatureUrban,
		FeatureStudentTeacherRatio,
		FeatureEnrollmentRate,
	}
}

// Extractors resolves names to extractors, keeping their order. An empty
// list resolves to FeatureNames.
func Extractors(names []string) ([]FeatureExtractor, error) {
	if len(names) == 0 {
		names = FeatureNames()
	}
	out := make([]FeatureExtractor, 0, len(names))
	for _, name := range names {
		ex, ok := extractors[name]
		if !ok {
			return nil, fmt.Errorf("unknown feature %q", name)
		}
		out = append(out, ex)
	}
	return out, nil
}

func FeatureVector(f SchoolFeatures, columns []FeatureExtractor) []float64 {
	vector := make([]float64, len(columns))
	for i, col := range columns {
		vector[i] = col.Value(f)
	}
	return vector
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
