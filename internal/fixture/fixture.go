// Package fixture writes synthetic method directories for tests.
package fixture

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Param is one parameter element. A non-nil List writes entry children.
type Param struct {
	Name  string
	Value string
	List  []string
}

// P returns a scalar parameter.
func P(name, value string) Param {
	return Param{Name: name, Value: value}
}

// L returns a list parameter.
func L(name string, values ...string) Param {
	return Param{Name: name, List: values}
}

// Dependent is a polarity or source dependent block.
type Dependent struct {
	Polarity string
	Source   string
	Params   []Param
}

// Segment is one timetable segment. An empty EndTime omits the attribute.
type Segment struct {
	EndTime    string
	Params     []Param
	Dependents []Dependent
}

// Method describes the method document of a directory.
type Method struct {
	Params     []Param
	Dependents []Dependent
	Instrument []Param
	Segments   []Segment
}

// XML renders the method document.
func (m Method) XML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n")
	b.WriteString("<root>\n<method>\n")
	writeParams(&b, m.Params)
	writeDependents(&b, m.Dependents)
	if len(m.Segments) > 0 {
		b.WriteString("<qtofimpactemacq>\n<timetable>\n")
		for _, s := range m.Segments {
			if s.EndTime != "" {
				fmt.Fprintf(&b, "<segment endtime=%q>\n", s.EndTime)
			} else {
				b.WriteString("<segment>\n")
			}
			writeParams(&b, s.Params)
			writeDependents(&b, s.Dependents)
			b.WriteString("</segment>\n")
		}
		b.WriteString("</timetable>\n</qtofimpactemacq>\n")
	}
	b.WriteString("</method>\n")
	if m.Instrument != nil {
		b.WriteString("<instrument>\n")
		writeParams(&b, m.Instrument)
		b.WriteString("</instrument>\n")
	}
	b.WriteString("</root>\n")
	return b.String()
}

func writeParams(b *strings.Builder, params []Param) {
	for _, p := range params {
		if p.List != nil {
			fmt.Fprintf(b, "<para_vec_double permname=%q>", p.Name)
			for _, v := range p.List {
				fmt.Fprintf(b, "<entry_double value=\"%s\"/>", html.EscapeString(v))
			}
			b.WriteString("</para_vec_double>\n")
			continue
		}
		fmt.Fprintf(b, "<para_double permname=%q value=\"%s\"/>\n", p.Name, html.EscapeString(p.Value))
	}
}

func writeDependents(b *strings.Builder, deps []Dependent) {
	for _, d := range deps {
		b.WriteString("<dependent")
		if d.Polarity != "" {
			fmt.Fprintf(b, " polarity=%q", d.Polarity)
		}
		if d.Source != "" {
			fmt.Fprintf(b, " source=%q", d.Source)
		}
		b.WriteString(">\n")
		writeParams(b, d.Params)
		b.WriteString("</dependent>\n")
	}
}

// Write creates dir/name.d holding the method document and returns its path.
func Write(t testing.TB, root, name string, m Method) string {
	t.Helper()
	dir := filepath.Join(root, name+".d")
	mdir := filepath.Join(dir, name+".m")
	if err := os.MkdirAll(mdir, 0o755); err != nil {
		t.Fatalf("fixture: mkdir: %v", err)
	}
	path := filepath.Join(mdir, "microTOFQImpacTemAcquisition.method")
	if err := os.WriteFile(path, []byte(m.XML()), 0o644); err != nil {
		t.Fatalf("fixture: write method: %v", err)
	}
	return dir
}

// MethodDir returns the .m directory inside a directory made by Write.
func MethodDir(dir string) string {
	name := strings.TrimSuffix(filepath.Base(dir), ".d")
	return filepath.Join(dir, name+".m")
}

// DiaWindow is one DiaWindowsSpecification row.
type DiaWindow struct {
	Type           int
	Cycle          int
	MobilityStart  float64
	MobilityEnd    float64
	IsolationMz    float64
	IsolationWidth float64
}

// WriteDiaWindows writes diasettings.diasqlite into the method directory.
func WriteDiaWindows(t testing.TB, dir string, rows []DiaWindow) {
	t.Helper()
	db := create(t, filepath.Join(MethodDir(dir), "diasettings.diasqlite"), `
CREATE TABLE DiaWindowsSpecification (
    Id INTEGER PRIMARY KEY,
    Type INTEGER,
    CycleId INTEGER,
    OneOverK0Start REAL,
    OneOverK0End REAL,
    IsolationMz REAL,
    IsolationWidth REAL,
    CollisionEnergy REAL
)`)
	defer db.Close()
	for i, r := range rows {
		exec(t, db, `INSERT INTO DiaWindowsSpecification
(Id, Type, CycleId, OneOverK0Start, OneOverK0End, IsolationMz, IsolationWidth) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i+1, r.Type, r.Cycle, r.MobilityStart, r.MobilityEnd, r.IsolationMz, r.IsolationWidth)
	}
}

// Template is the diagonal-PASEF template row.
type Template struct {
	Slope          float64
	Origin         float64
	WidthMz        float64
	IsolationMz    float64
	Slices         int
	InsertMS1Scans int
}

// WriteTemplate writes synchroSettings.syncsqlite into the method directory.
func WriteTemplate(t testing.TB, dir string, tpl Template) {
	t.Helper()
	db := create(t, filepath.Join(MethodDir(dir), "synchroSettings.syncsqlite"), `
CREATE TABLE Template (
    slope REAL,
    origin REAL,
    width_mz REAL,
    isolation_mz REAL,
    number_of_slices INTEGER,
    insert_ms_scan INTEGER
)`)
	defer db.Close()
	exec(t, db, `INSERT INTO Template VALUES (?, ?, ?, ?, ?, ?)`,
		tpl.Slope, tpl.Origin, tpl.WidthMz, tpl.IsolationMz, tpl.Slices, tpl.InsertMS1Scans)
}

// Precursor is one PasefSchedule row.
type Precursor struct {
	Frame          int
	Mobility       float64
	IsolationMz    float64
	IsolationWidth float64
}

// WritePasefSchedule writes pasefSchedule.pasefsqlite into the method directory.
func WritePasefSchedule(t testing.TB, dir string, rows []Precursor) {
	t.Helper()
	db := create(t, filepath.Join(MethodDir(dir), "pasefSchedule.pasefsqlite"), `
CREATE TABLE PasefSchedule (
    Frame INTEGER,
    OneOverK0 REAL,
    IsolationMz REAL,
    IsolationWidth REAL
)`)
	defer db.Close()
	for _, r := range rows {
		exec(t, db, `INSERT INTO PasefSchedule VALUES (?, ?, ?, ?)`, r.Frame, r.Mobility, r.IsolationMz, r.IsolationWidth)
	}
}

func create(t testing.TB, path, schema string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("fixture: open %s: %v", path, err)
	}
	exec(t, db, schema)
	return db
}

func exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("fixture: %v", err)
	}
}

// Base returns the parameters shared by most fixtures for the given scan
// mode code.
func Base(scanMode string) []Param {
	return []Param{
		P("Mode_ScanMode", scanMode),
		P("Mode_IonPolarity", "0"),
		P("Mode_ScanBeginMass", "100"),
		P("Mode_ScanEndMass", "1700"),
		P("IMS_imeX_Mode", "1"),
		L("IMS_imeX_RampStart", "0.85", "0.60", "0.70"),
		L("IMS_imeX_RampEnd", "1.30", "1.60", "1.45"),
		L("IMS_imeX_RampTime", "50", "100", "166"),
		P("IMS_imeX_AccumulationTime", "100"),
		P("IMS_imeX_DutyCycleLock", "1"),
		P("IMSICC_Mode", "0"),
		P("Collision_QuenchTime_Set", "0"),
		P("Collision_Energy_Set", "10"),
		P("Energy_Ramping_Advanced_Settings_Active", "0"),
		L("Energy_Ramping_Collision_Energy_StartEnd", "20", "59"),
		L("Energy_Ramping_Mobility_StartEnd", "0.6", "1.6"),
	}
}

// Override replaces parameters of base by name and appends new ones.
func Override(base []Param, params ...Param) []Param {
	out := append([]Param(nil), base...)
	for _, p := range params {
		replaced := false
		for i := range out {
			if out[i].Name == p.Name {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}
