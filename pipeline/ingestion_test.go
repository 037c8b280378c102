package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

const sampleCSV = `anio,semestre,escuelaId,cantidad_alumnos,numero_inscripciones,numero_maestros,promedio_calificaciones,esUrbana,tasa_desercion
2022,1,E001,300,280,15,8.2,1,4.5
2022,2,E001,310,290,15,8.4,True,4.1
2022,1,E002,120,90,6,7.1,0,9.8
2022,1,E003,abc,90,6,7.1,0,9.8
`

func TestReadCSV(t *testing.T) {
	records, issues, err := ReadCSV(strings.NewReader(sampleCSV), "")
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if len(issues) != 1 || issues[0].Row != 5 || issues[0].SchoolID != "E003" || issues[0].Type != "parse" {
		t.Fatalf("unexpected issues %+v", issues)
	}

	want := Record{Year: 2022, Semester: 2, SchoolID: "E001", Students: 310, Enrollments: 290,
		Teachers: 15, AverageGrade: 8.4, Urban: true, DropoutRate: 4.1}
	if records[1] != want {
		t.Errorf("got %+v, want %+v", records[1], want)
	}
	if records[2].Urban {
		t.Error("expected rural school")
	}
	if records[1].Period() != 2022.5 {
		t.Errorf("unexpected period %v", records[1].Period())
	}
}

func TestReadCSVLegacyEncoding(t *testing.T) {
	header := "anio,semestre,escuelaId,cantidad_alumnos,numero_inscripciones,numero_maestros,promedio_calificaciones,esUrbana,tasa_desercion\n"
	row := "2023,1,Escuela Núñez,200,180,10,8.0,urbana,3.2\n"

	latin1, err := charmap.ISO8859_1.NewEncoder().String(header + row)
	if err != nil {
		t.Fatal(err)
	}
	records, _, err := ReadCSV(bytes.NewBufferString(latin1), "latin1")
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 1 || records[0].SchoolID != "Escuela Núñez" {
		t.Fatalf("unexpected records %+v", records)
	}

	records, _, err = ReadCSV(strings.NewReader("\ufeff"+header+row), "utf-8")
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 1 || !records[0].Urban {
		t.Fatalf("BOM header not handled: %+v", records)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		encoding string
	}{
		{"empty", "", ""},
		{"missing column", "anio,semestre\n2022,1\n", ""},
		{"unknown encoding", sampleCSV, "ebcdic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadCSV(strings.NewReader(tt.content), tt.encoding); err == nil {
				t.Error("ReadCSV() expected error")
			}
		})
	}
}
