package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleRows() []Row {
	ts := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	return []Row{
		{Section: SectionEvent, TxID: "msg-1", Type: "METER_READING", TS: ts, WellID: "well-1", VolumeLiters: 150},
		{Section: SectionSettlement, TxID: "stl-1", Type: "EXECUTED", TS: ts.Add(time.Hour), WellID: "well-1", VolumeLiters: 150},
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"csv", FormatCSV, true},
		{"json", FormatJSON, true},
		{"xlsx", FormatXLSX, true},
		{"pdf", FormatPDF, true},
		{"", FormatJSON, true},
		{"yaml", "", false},
		{"CSV", "", false},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Fatalf("ParseFormat(%q) accepted, want error", c.in)
		}
	}
}

func TestWriteCSVHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRows()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want header plus 2 rows", len(records))
	}
	wantHeader := []string{"section", "txId", "type", "ts", "wellId", "volumeLiters"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Fatalf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}
	if records[1][1] != "msg-1" || records[1][5] != "150" {
		t.Fatalf("first row = %v", records[1])
	}
	if records[1][3] != "2026-03-01T08:30:00Z" {
		t.Fatalf("timestamp = %q, want RFC3339 UTC", records[1][3])
	}
}

func TestWriteCSVEscapesSeparators(t *testing.T) {
	rows := []Row{{Section: SectionEvent, TxID: `id,with"quotes`, Type: "OTHER", TS: time.Now(), WellID: "well-1"}}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if records[1][1] != `id,with"quotes` {
		t.Fatalf("tx id round-trip = %q", records[1][1])
	}
}

func TestWriteJSONShape(t *testing.T) {
	report := Report{WellID: "well-1", AsOf: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), EventCount: 2}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, report, sampleRows()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var doc struct {
		Report Report `json:"report"`
		Rows   []Row  `json:"rows"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Report.WellID != "well-1" || doc.Report.EventCount != 2 {
		t.Fatalf("report = %+v", doc.Report)
	}
	if len(doc.Rows) != 2 || doc.Rows[0].Section != SectionEvent {
		t.Fatalf("rows = %+v", doc.Rows)
	}
}

func TestBuildXLSXProducesWorkbook(t *testing.T) {
	report := Report{WellID: "well-1", AsOf: time.Now().UTC(), EventCount: 2, SettlementCount: 1}
	data, err := BuildXLSX(report, sampleRows())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	// XLSX files are zip archives.
	if len(data) < 4 || data[0] != 'P' || data[1] != 'K' {
		t.Fatalf("output does not look like a workbook, %d bytes", len(data))
	}
}

func TestBuildPDFProducesDocument(t *testing.T) {
	report := Report{WellID: "well-1", AsOf: time.Now().UTC(), EventCount: 2}
	data, err := BuildPDF(report, sampleRows())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF") {
		t.Fatalf("output does not look like a pdf, %d bytes", len(data))
	}
}

func TestContentType(t *testing.T) {
	if got := FormatCSV.ContentType(); got != "text/csv" {
		t.Fatalf("csv content type = %q", got)
	}
	if got := FormatJSON.ContentType(); got != "application/json" {
		t.Fatalf("json content type = %q", got)
	}
}
