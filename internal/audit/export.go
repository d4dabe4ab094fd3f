package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Format selects an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query-string value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatXLSX, FormatPDF:
		return Format(s), nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// WriteCSV streams rows with the fixed audit header. Fields containing
// separators or quotes are escaped by encoding/csv.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"section", "txId", "type", "ts", "wellId", "volumeLiters"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Section,
			row.TxID,
			row.Type,
			row.TS.UTC().Format(time.RFC3339),
			row.WellID,
			strconv.FormatInt(row.VolumeLiters, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// exportDocument is the JSON export shape: the summary plus all rows.
type exportDocument struct {
	Report Report `json:"report"`
	Rows   []Row  `json:"rows"`
}

// WriteJSON streams the full nested report.
func WriteJSON(w io.Writer, report Report, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportDocument{Report: report, Rows: rows})
}

// BuildXLSX renders the report as a two-sheet workbook.
func BuildXLSX(report Report, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	rowsSheet := "rows"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(rowsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Audit Report")
	_ = f.SetCellValue(summarySheet, "A3", "Well")
	_ = f.SetCellValue(summarySheet, "B3", report.WellID)
	_ = f.SetCellValue(summarySheet, "A4", "As Of")
	_ = f.SetCellValue(summarySheet, "B4", report.AsOf.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Events")
	_ = f.SetCellValue(summarySheet, "B5", report.EventCount)
	_ = f.SetCellValue(summarySheet, "A6", "Settlements")
	_ = f.SetCellValue(summarySheet, "B6", report.SettlementCount)
	_ = f.SetCellValue(summarySheet, "A7", "Anchors")
	_ = f.SetCellValue(summarySheet, "B7", report.AnchorCount)
	if report.LatestAnchor != nil {
		_ = f.SetCellValue(summarySheet, "A8", "Latest Anchor Root")
		_ = f.SetCellValue(summarySheet, "B8", report.LatestAnchor.MerkleRoot)
		_ = f.SetCellValue(summarySheet, "A9", "Latest Anchor Tx")
		_ = f.SetCellValue(summarySheet, "B9", report.LatestAnchor.AnchorTxID)
	}

	_ = f.SetCellValue(rowsSheet, "A1", "Section")
	_ = f.SetCellValue(rowsSheet, "B1", "Tx ID")
	_ = f.SetCellValue(rowsSheet, "C1", "Type")
	_ = f.SetCellValue(rowsSheet, "D1", "Timestamp")
	_ = f.SetCellValue(rowsSheet, "E1", "Well")
	_ = f.SetCellValue(rowsSheet, "F1", "Volume (L)")
	for i, row := range rows {
		line := i + 2
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("A%d", line), row.Section)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("B%d", line), row.TxID)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("C%d", line), row.Type)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("D%d", line), row.TS.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("E%d", line), row.WellID)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("F%d", line), row.VolumeLiters)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders a minimal PDF for the report.
func BuildPDF(report Report, rows []Row) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Audit Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	if report.WellID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Well: %s", report.WellID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("As Of: %s", report.AsOf.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d", report.EventCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Settlements: %d", report.SettlementCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Anchors: %d", report.AnchorCount))
	pdf.Ln(5)
	if report.LatestAnchor != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Latest Root: %s", report.LatestAnchor.MerkleRoot))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(22, 6, "Section", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Tx ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Timestamp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Volume (L)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		pdf.CellFormat(22, 6, row.Section, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, row.TxID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, row.Type, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, row.TS.UTC().Format("2006-01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, strconv.FormatInt(row.VolumeLiters, 10), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
