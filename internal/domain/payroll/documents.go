package payroll

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

const registerSheet = "Register"

var registerHeaders = []string{
	"Payslip", "Employee", "Name", "From", "To",
	"Rule", "Line", "Category", "Sequence", "Quantity", "Rate", "Amount", "Total",
}

// PayslipPDF renders a stored payslip.
func (s *Service) PayslipPDF(ctx context.Context, tenantID, payslipID string) ([]byte, error) {
	payslip, err := s.store.GetPayslip(ctx, tenantID, payslipID)
	if err != nil {
		return nil, err
	}
	return renderPayslipPDF(payslip)
}

func renderPayslipPDF(p Payslip) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	writePayslip(pdf, p)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writePayslip lays the payslip out on a new page. The core fonts only carry
// cp1252, so every text goes through the translator first.
func writePayslip(pdf *gofpdf.Fpdf, p Payslip) {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Employee: %s %s", p.EmployeeRef, p.EmployeeName)))
	pdf.Ln(6)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Period: %s to %s", p.DateFrom, p.DateTo)))
	pdf.Ln(10)

	widths := []float64{25, 75, 25, 30, 35}
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range []string{"Code", "Description", "Quantity", "Rate", "Total"} {
		pdf.CellFormat(widths[i], 7, h, "B", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range p.Lines {
		pdf.CellFormat(widths[0], 6, tr(line.RuleCode), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, tr(line.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, line.Quantity.String(), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, line.Rate.String()+"%", "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, line.Total.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Gross: %s %s", p.Summary.Gross.StringFixed(2), p.Currency)))
	pdf.Ln(6)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Deductions: %s %s", p.Summary.Deductions.StringFixed(2), p.Currency)))
	pdf.Ln(6)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Net: %s %s", p.Summary.Net.StringFixed(2), p.Currency)))
}

// RegisterXLSX exports every stored line of a structure, one row per line.
func (s *Service) RegisterXLSX(ctx context.Context, tenantID, structureID string) ([]byte, error) {
	if _, err := s.store.GetStructure(ctx, tenantID, structureID); err != nil {
		return nil, err
	}
	rows, err := s.store.RegisterRows(ctx, tenantID, structureID)
	if err != nil {
		return nil, fmt.Errorf("fetch register: %w", err)
	}
	return renderRegister(rows)
}

func renderRegister(rows []RegisterRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 2}},
	})
	if err != nil {
		return nil, err
	}
	for i, name := range registerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(registerSheet, cell, name); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(registerHeaders), 1)
	if err := f.SetCellStyle(registerSheet, "A1", last, headerStyle); err != nil {
		return nil, err
	}

	for r, row := range rows {
		values := []any{
			row.PayslipID, row.EmployeeRef, row.EmployeeName, row.DateFrom, row.DateTo,
			row.Line.RuleCode, row.Line.Name, row.Line.CategoryCode, row.Line.Sequence,
			row.Line.Quantity.InexactFloat64(), row.Line.Rate.InexactFloat64(),
			row.Line.Amount.InexactFloat64(), row.Line.Total.InexactFloat64(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(registerSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
