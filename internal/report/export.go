package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportFormat defines the export file format.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatJSON ExportFormat = "json"
)

// ExportOptions defines export configuration.
type ExportOptions struct {
	Format       ExportFormat
	FilePath     string
	IncludeEmpty bool // Include rows with empty values
	MaxRows      int  // 0 = unlimited
	Delimiter    rune // For CSV, default is comma
}

// DefaultExportOptions returns default export options.
func DefaultExportOptions() *ExportOptions {
	return &ExportOptions{
		Format:       FormatCSV,
		IncludeEmpty: true,
		Delimiter:    ',',
	}
}

// Exporter handles exporting reports to various formats.
type Exporter struct {
	options *ExportOptions
}

// NewExporter creates a new exporter.
func NewExporter(options *ExportOptions) *Exporter {
	if options == nil {
		options = DefaultExportOptions()
	}
	return &Exporter{options: options}
}

// Export exports a report to the specified format.
func (e *Exporter) Export(report *Report) error {
	switch e.options.Format {
	case FormatCSV:
		return e.exportCSV(report)
	case FormatXLSX:
		return e.exportXLSX(report)
	case FormatJSON:
		return e.exportJSON(report)
	default:
		return fmt.Errorf("unsupported export format: %s", e.options.Format)
	}
}

// rowValues flattens a row into column order and reports whether every
// cell rendered empty.
func rowValues(row *ReportRow, columns []string) ([]string, bool) {
	values := make([]string, len(columns))
	empty := true
	for i, col := range columns {
		if val, ok := row.Values[col]; ok {
			values[i] = renderValue(val)
			if values[i] != "" {
				empty = false
			}
		}
	}
	return values, empty
}

// exportCSV exports report to CSV format.
func (e *Exporter) exportCSV(report *Report) error {
	file, err := os.Create(e.options.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// Write UTF-8 BOM for Excel compatibility
	file.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(file)
	if e.options.Delimiter != 0 {
		writer.Comma = e.options.Delimiter
	}
	defer writer.Flush()

	if err := writer.Write(report.Definition.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	written := 0
	for _, row := range report.Rows {
		if e.options.MaxRows > 0 && written >= e.options.MaxRows {
			break
		}

		values, empty := rowValues(row, report.Definition.Columns)
		if empty && !e.options.IncludeEmpty {
			continue
		}

		if err := writer.Write(values); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		written++
	}

	return nil
}

// exportXLSX exports report to Excel format.
func (e *Exporter) exportXLSX(report *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := sanitizeSheetName(report.Definition.Name)
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1E88E5"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	e.writeSheet(f, sheetName, report)

	// Header style and column widths
	for i, col := range report.Definition.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		width := float64(len(col) + 5)
		if width < 15 {
			width = 15
		}
		if width > 50 {
			width = 50
		}
		f.SetColWidth(sheetName, colName, colName, width)
	}

	// Filters over the whole table
	lastCol, _ := excelize.ColumnNumberToName(len(report.Definition.Columns))
	filterRange := fmt.Sprintf("A1:%s%d", lastCol, len(report.Rows)+1)
	f.AutoFilter(sheetName, filterRange, nil)

	// Freeze header row
	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	e.addMetadataSheet(f, report)

	return f.SaveAs(e.options.FilePath)
}

// writeSheet writes the header and data rows of one report to a sheet.
func (e *Exporter) writeSheet(f *excelize.File, sheetName string, report *Report) {
	for i, col := range report.Definition.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
	}

	written := 0
	for _, row := range report.Rows {
		if e.options.MaxRows > 0 && written >= e.options.MaxRows {
			break
		}

		if _, empty := rowValues(row, report.Definition.Columns); empty && !e.options.IncludeEmpty {
			continue
		}

		for i, col := range report.Definition.Columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, written+2)
			if val, ok := row.Values[col]; ok {
				f.SetCellValue(sheetName, cell, val)
			}
		}
		written++
	}
}

// addMetadataSheet adds a metadata sheet to the Excel file.
func (e *Exporter) addMetadataSheet(f *excelize.File, report *Report) {
	sheetName := "Metadata"
	f.NewSheet(sheetName)

	metadata := [][]string{
		{"Report Name", report.Definition.Name},
		{"Description", report.Definition.Description},
		{"Category", report.Definition.Category},
		{"Total Rows", fmt.Sprintf("%d", report.TotalCount)},
		{"Generated", time.Now().Format(time.RFC3339)},
		{"Tool", "Prowl Web Crawler"},
	}

	for i, row := range metadata {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", i+1), row[0])
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", i+1), row[1])
	}

	f.SetColWidth(sheetName, "A", "A", 20)
	f.SetColWidth(sheetName, "B", "B", 50)
}

// exportJSON exports report to JSON format.
func (e *Exporter) exportJSON(report *Report) error {
	data := &JSONReport{
		Metadata: JSONMetadata{
			ReportType:  string(report.Definition.Type),
			Name:        report.Definition.Name,
			Description: report.Definition.Description,
			Category:    report.Definition.Category,
			TotalCount:  report.TotalCount,
			Generated:   time.Now().Format(time.RFC3339),
			Columns:     report.Definition.Columns,
		},
		Rows: make([]map[string]interface{}, 0, len(report.Rows)),
	}

	written := 0
	for _, row := range report.Rows {
		if e.options.MaxRows > 0 && written >= e.options.MaxRows {
			break
		}

		if _, empty := rowValues(row, report.Definition.Columns); empty && !e.options.IncludeEmpty {
			continue
		}

		data.Rows = append(data.Rows, row.Values)
		written++
	}

	file, err := os.Create(e.options.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	return encoder.Encode(data)
}

// JSONReport represents the JSON export structure.
type JSONReport struct {
	Metadata JSONMetadata             `json:"metadata"`
	Rows     []map[string]interface{} `json:"rows"`
}

// JSONMetadata represents report metadata.
type JSONMetadata struct {
	ReportType  string   `json:"report_type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	TotalCount  int      `json:"total_count"`
	Generated   string   `json:"generated"`
	Columns     []string `json:"columns"`
}

// renderValue converts a value to string for export.
func renderValue(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.4f", val)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// sanitizeSheetName ensures sheet name is valid for Excel.
func sanitizeSheetName(name string) string {
	invalid := []string{"\\", "/", "?", "*", "[", "]", ":"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	if len(result) > 31 {
		result = result[:31]
	}
	return result
}

// sanitizeFilename ensures filename is valid.
func sanitizeFilename(name string) string {
	invalid := []string{"\\", "/", ":", "*", "?", "\"", "<", ">", "|", " "}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.ToLower(result)
}

// BulkExporter writes every report for one crawl.
type BulkExporter struct {
	generator *Generator
	outputDir string
}

// NewBulkExporter creates a new bulk exporter.
func NewBulkExporter(generator *Generator, outputDir string) *BulkExporter {
	return &BulkExporter{
		generator: generator,
		outputDir: outputDir,
	}
}

// ExportAll writes one file per non-empty report in the given format.
func (b *BulkExporter) ExportAll(format ExportFormat) error {
	if err := os.MkdirAll(b.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")

	for _, def := range AllReports() {
		report, err := b.generator.Generate(def.Type)
		if err != nil || report.TotalCount == 0 {
			continue
		}

		filename := fmt.Sprintf("%s_%s.%s", sanitizeFilename(def.Name), timestamp, format)
		exporter := NewExporter(&ExportOptions{
			Format:       format,
			FilePath:     filepath.Join(b.outputDir, filename),
			IncludeEmpty: true,
			Delimiter:    ',',
		})
		if err := exporter.Export(report); err != nil {
			return fmt.Errorf("failed to export %s: %w", def.Name, err)
		}
	}

	return nil
}

// ExportWorkbook writes all reports into a single Excel file, one sheet
// per report plus a summary sheet.
func (b *BulkExporter) ExportWorkbook(filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	f.DeleteSheet("Sheet1")
	b.addSummarySheet(f)

	exporter := NewExporter(DefaultExportOptions())
	for _, def := range AllReports() {
		report, err := b.generator.Generate(def.Type)
		if err != nil || report.TotalCount == 0 {
			continue
		}

		sheetName := sanitizeSheetName(def.Name)
		f.NewSheet(sheetName)
		exporter.writeSheet(f, sheetName, report)
	}

	return f.SaveAs(filePath)
}

// addSummarySheet adds a summary sheet with row counts per report.
func (b *BulkExporter) addSummarySheet(f *excelize.File) {
	sheetName := "Summary"
	f.NewSheet(sheetName)
	f.SetActiveSheet(0)

	headers := []string{"Report", "Category", "Description", "Rows"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	row := 2
	for _, def := range AllReports() {
		count := 0
		if report, err := b.generator.Generate(def.Type); err == nil {
			count = report.TotalCount
		}

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), def.Name)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), def.Category)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), def.Description)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), count)
		row++
	}

	f.SetColWidth(sheetName, "A", "A", 30)
	f.SetColWidth(sheetName, "B", "B", 15)
	f.SetColWidth(sheetName, "C", "C", 50)
	f.SetColWidth(sheetName, "D", "D", 10)
}

// ViewExporter exports a filtered view of a report.
type ViewExporter struct {
	*Exporter
}

// NewViewExporter creates an exporter for a filtered view.
func NewViewExporter(options *ExportOptions) *ViewExporter {
	return &ViewExporter{Exporter: NewExporter(options)}
}

// ExportFiltered exports only rows matching the filter.
func (v *ViewExporter) ExportFiltered(report *Report, filterColumn string, filterValue interface{}) error {
	return v.Export(report.FilterReport(filterColumn, filterValue))
}
