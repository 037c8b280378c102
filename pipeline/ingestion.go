package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"edupredict/ml"
)

// Record is one school observed in one semester.
type Record struct {
	Year         int     `json:"anio"`
	Semester     int     `json:"semestre"`
	SchoolID     string  `json:"escuelaId"`
	Students     float64 `json:"cantidad_alumnos"`
	Enrollments  float64 `json:"numero_inscripciones"`
	Teachers     float64 `json:"numero_maestros"`
	AverageGrade float64 `json:"promedio_calificaciones"`
	Urban        bool    `json:"esUrbana"`
	DropoutRate  float64 `json:"tasa_desercion"`
}

func (r Record) Period() float64 {
	return ml.TimePeriod(r.Year, r.Semester)
}

func (r Record) Features() ml.SchoolFeatures {
	return ml.SchoolFeatures{
		Students:     r.Students,
		Enrollments:  r.Enrollments,
		Teachers:     r.Teachers,
		AverageGrade: r.AverageGrade,
		Urban:        r.Urban,
	}
}

// Column names of the historical dataset.
const (
	ColYear         = "anio"
	ColSemester     = "semestre"
	ColSchoolID     = "escuelaId"
	ColStudents     = "cantidad_alumnos"
	ColEnrollments  = "numero_inscripciones"
	ColTeachers     = "numero_maestros"
	ColAverageGrade = "promedio_calificaciones"
	ColUrban        = "esUrbana"
	ColDropoutRate  = "tasa_desercion"
)

var requiredColumns = []string{
	ColYear, ColSemester, ColSchoolID, ColStudents, ColEnrollments,
	ColTeachers, ColAverageGrade, ColUrban, ColDropoutRate,
}

// Decoder returns the decoder for a named legacy encoding. UTF-8 and the
// empty name return nil.
func Decoder(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path, encodingName string) ([]Record, []QualityIssue, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return ReadCSV(file, encodingName)
}

// ReadCSV parses the dataset. Rows whose values cannot be parsed are
// returned as issues instead of failing the whole read; a missing column
// fails it.
func ReadCSV(r io.Reader, encodingName string) ([]Record, []QualityIssue, error) {
	decoder, err := Decoder(encodingName)
	if err != nil {
		return nil, nil, err
	}
	if decoder != nil {
		r = transform.NewReader(r, decoder)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("dataset is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, nil, err
	}

	var records []Record
	var issues []QualityIssue
	for row := 2; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			issues = append(issues, parseIssue(row, "", err))
			continue
		}
		record, err := parseRecord(fields, index)
		if err != nil {
			issues = append(issues, parseIssue(row, fieldAt(fields, index[ColSchoolID]), err))
			continue
		}
		records = append(records, record)
	}
	return records, issues, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		index[name] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRecord(fields []string, index map[string]int) (Record, error) {
	p := fieldParser{fields: fields, index: index}
	record := Record{
		Year:         p.integer(ColYear),
		Semester:     p.integer(ColSemester),
		SchoolID:     p.text(ColSchoolID),
		Students:     p.number(ColStudents),
		Enrollments:  p.number(ColEnrollments),
		Teachers:     p.number(ColTeachers),
		AverageGrade: p.number(ColAverageGrade),
		Urban:        p.flag(ColUrban),
		DropoutRate:  p.number(ColDropoutRate),
	}
	return record, p.err
}

// fieldParser keeps the first conversion error so a row can be parsed in
// one expression.
type fieldParser struct {
	fields []string
	index  map[string]int
	err    error
}

func (p *fieldParser) text(col string) string {
	return strings.TrimSpace(fieldAt(p.fields, p.index[col]))
}

func (p *fieldParser) number(col string) float64 {
	raw := p.text(col)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid number %q", col, raw)
	}
	return v
}

func (p *fieldParser) integer(col string) int {
	v := p.number(col)
	if v != float64(int(v)) && p.err == nil {
		p.err = fmt.Errorf("%s: expected an integer, got %v", col, v)
	}
	return int(v)
}

func (p *fieldParser) flag(col string) bool {
	raw := strings.ToLower(p.text(col))
	switch raw {
	case "1", "true", "yes", "urbana", "1.0":
		return true
	case "0", "false", "no", "rural", "0.0":
		return false
	}
	if p.err == nil {
		p.err = fmt.Errorf("%s: invalid flag %q", col, raw)
	}
	return false
}

func fieldAt(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseIssue(row int, schoolID string, err error) QualityIssue {
	return QualityIssue{
		Type:     "parse",
		Severity: SeverityHigh,
		Message:  err.Error(),
		Row:      row,
		SchoolID: schoolID,
	}
}
