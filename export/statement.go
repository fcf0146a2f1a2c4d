// Package export renders farmer statements as PDF, XLSX and CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
	"github.com/aasavchauhan/Water-Supply-Management-System/metrics"
)

const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// ContentTypes maps each format to its MIME type.
var ContentTypes = map[string]string{
	FormatPDF:  "application/pdf",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatCSV:  "text/csv; charset=utf-8",
}

// Render dispatches to the renderer for format and records the outcome.
func Render(format string, fs billing.FarmerStatement) ([]byte, error) {
	start := time.Now()
	var (
		out []byte
		err error
	)
	switch format {
	case FormatPDF:
		out, err = StatementPDF(fs)
	case FormatXLSX:
		out, err = StatementXLSX(fs)
	case FormatCSV:
		out, err = StatementCSV(fs)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveStatementExport(format, result, time.Since(start))
	return out, err
}

// Filename suggests a download name such as "statement-ramesh-2024-03-01.pdf".
func Filename(fs billing.FarmerStatement, format string, now time.Time) string {
	return fmt.Sprintf("statement-%s-%s.%s", slug(fs.Farmer.Name), now.Format("2006-01-02"), format)
}

// StatementPDF renders a one-page-per-screenful receipt. The core PDF fonts
// are Latin-1 only, so amounts carry the currency code rather than the symbol.
func StatementPDF(fs billing.FarmerStatement) ([]byte, error) {
	st, stmt := fs.Settings, fs.Statement
	money := func(d decimal.Decimal) string { return billing.FormatMoney(d, "") }

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	title := st.BusinessName
	if title == "" {
		title = "Water Supply Statement"
	}
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	if st.BusinessAddress != "" {
		pdf.Cell(0, 5, st.BusinessAddress)
		pdf.Ln(5)
	}
	if st.BusinessPhone != "" {
		pdf.Cell(0, 5, "Phone: "+st.BusinessPhone)
		pdf.Ln(5)
	}

	pdf.Ln(3)
	pdf.Cell(0, 6, fmt.Sprintf("Farmer: %s", fs.Farmer.Name))
	pdf.Ln(5)
	if fs.Farmer.Mobile != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Mobile: %s", fs.Farmer.Mobile))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, "Period: "+period(stmt, st.DateFormat))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Opening balance (%s): %s", st.Currency, money(stmt.Opening)))
	pdf.Ln(8)

	widths := []float64{24, 62, 18, 26, 26, 30}
	headers := []string{"Date", "Description", "Hours", "Debit", "Credit", "Balance"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, r := range stmt.Rows {
		hours := ""
		if r.Kind == billing.RowSupply {
			hours = billing.FormatHours(r.Hours)
		}
		cells := []string{
			billing.FormatDate(r.Date, st.DateFormat),
			r.Description,
			hours,
			blankZero(r.Debit, money),
			blankZero(r.Credit, money),
			money(r.Balance),
		}
		for i, c := range cells {
			align := "R"
			if i < 2 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Total charges (%s): %s", st.Currency, money(stmt.Totals.Charges)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total paid (%s): %s", st.Currency, money(stmt.Totals.Paid)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Closing balance (%s): %s", st.Currency, money(stmt.Closing)))
	pdf.Ln(5)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StatementXLSX renders a workbook with a summary sheet and a transactions sheet.
func StatementXLSX(fs billing.FarmerStatement) ([]byte, error) {
	st, stmt := fs.Settings, fs.Statement

	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	rowsSheet := "transactions"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(rowsSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Farmer", fs.Farmer.Name},
		{"Mobile", fs.Farmer.Mobile},
		{"Period", period(stmt, st.DateFormat)},
		{"Currency", st.Currency},
		{"Opening balance", stmt.Opening.InexactFloat64()},
		{"Total charges", stmt.Totals.Charges.InexactFloat64()},
		{"Total paid", stmt.Totals.Paid.InexactFloat64()},
		{"Closing balance", stmt.Closing.InexactFloat64()},
		{"Total hours", stmt.Totals.Hours.InexactFloat64()},
		{"Total water", stmt.Totals.Water.InexactFloat64()},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Water Supply Statement")
	for i, kv := range summary {
		row := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), kv[1])
	}

	headers := []string{"Date", "Type", "Description", "Hours", "Water", "Rate", "Debit", "Credit", "Balance"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(rowsSheet, cell, h)
	}
	for i, r := range stmt.Rows {
		values := []any{
			billing.FormatDate(r.Date, st.DateFormat),
			string(r.Kind),
			r.Description,
			r.Hours.InexactFloat64(),
			r.WaterUsed.InexactFloat64(),
			r.Rate.InexactFloat64(),
			r.Debit.InexactFloat64(),
			r.Credit.InexactFloat64(),
			r.Balance.InexactFloat64(),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(rowsSheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StatementCSV renders one line per transaction with exact decimal strings.
func StatementCSV(fs billing.FarmerStatement) ([]byte, error) {
	stmt := fs.Statement
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"date", "type", "record_id", "description", "hours", "water", "rate", "debit", "credit", "balance"},
	}
	for _, r := range stmt.Rows {
		records = append(records, []string{
			r.Date.Format(billing.DateLayout),
			string(r.Kind),
			r.RecordID,
			r.Description,
			r.Hours.StringFixed(2),
			r.WaterUsed.StringFixed(2),
			r.Rate.StringFixed(2),
			r.Debit.StringFixed(2),
			r.Credit.StringFixed(2),
			r.Balance.StringFixed(2),
		})
	}
	records = append(records, []string{
		"", "total", "", "",
		stmt.Totals.Hours.StringFixed(2),
		stmt.Totals.Water.StringFixed(2),
		"",
		stmt.Totals.Charges.StringFixed(2),
		stmt.Totals.Paid.StringFixed(2),
		stmt.Closing.StringFixed(2),
	})

	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func period(stmt billing.Statement, dateFormat string) string {
	from, to := "beginning", "today"
	if stmt.From != nil {
		from = billing.FormatDate(*stmt.From, dateFormat)
	}
	if stmt.To != nil {
		to = billing.FormatDate(*stmt.To, dateFormat)
	}
	return from + " to " + to
}

func blankZero(d decimal.Decimal, format func(decimal.Decimal) string) string {
	if d.IsZero() {
		return ""
	}
	return format(d)
}

func slug(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case len(out) > 0 && out[len(out)-1] != '-':
			out = append(out, '-')
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return "farmer"
	}
	return string(out)
}
