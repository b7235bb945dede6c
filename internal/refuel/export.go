package refuel

import (
	"bytes"
	"fmt"
	"math"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

const dateLayout = "2006-01-02"

var exportColumns = []string{"Date", "Amount", "Liters", "Price/L", "Odometer (km)", "Trip (km)", "Full tank", "Estimated", "Notes"}

func exportRow(r *Record) []interface{} {
	return []interface{}{
		r.Date.Format(dateLayout),
		round(r.Amount, 2),
		round(r.Liters, 2),
		round(r.PricePerLiter, 3),
		round(r.Odometer, 0),
		round(r.TripDistance, 1),
		yesNo(r.IsFullTank),
		yesNo(r.IsEstimated),
		r.Notes,
	}
}

// BuildRefuelXLSX renders the log as a workbook with a summary and a refuels sheet
func BuildRefuelXLSX(records []*Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	refuelSheet := "refuels"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("naming summary sheet: %w", err)
	}
	if _, err := f.NewSheet(refuelSheet); err != nil {
		return nil, fmt.Errorf("creating refuels sheet: %w", err)
	}

	sum := Summarize(records)
	summaryRows := [][]interface{}{
		{"Refuel Log"},
		{},
		{"Records", sum.Records},
		{"Estimated records", sum.EstimatedRecords},
		{"Total spent", round(sum.TotalSpent, 2)},
		{"Total liters", round(sum.TotalLiters, 2)},
		{"Average paid per liter", round(sum.AvgPaidPerLiter, 3)},
		{"Average consumption (L/100km)", round(sum.Averages.AvgConsumptionPer100km, 2)},
	}
	for i, row := range summaryRows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return nil, err
		}
	}

	header := make([]interface{}, len(exportColumns))
	for i, c := range exportColumns {
		header[i] = c
	}
	if err := setRow(f, refuelSheet, 1, header); err != nil {
		return nil, err
	}
	for i, r := range records {
		if err := setRow(f, refuelSheet, i+2, exportRow(r)); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

// BuildRefuelPDF renders the log as a landscape table
func BuildRefuelPDF(records []*Record) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, "Refuel Log")
	pdf.Ln(10)

	sum := Summarize(records)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d (%d estimated)", sum.Records, sum.EstimatedRecords))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total spent: %.2f", sum.TotalSpent))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total liters: %.2f", sum.TotalLiters))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Average paid per liter: %.3f", sum.AvgPaidPerLiter))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Average consumption: %.2f L/100km", sum.Averages.AvgConsumptionPer100km))
	pdf.Ln(8)

	widths := []float64{26, 24, 22, 22, 32, 24, 22, 22, 83}
	pdf.SetFont("Arial", "B", 9)
	for i, c := range exportColumns {
		pdf.CellFormat(widths[i], 6, c, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	// Core fonts are cp1252; notes are free text
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 9)
	for _, r := range records {
		cells := []string{
			r.Date.Format(dateLayout),
			fmt.Sprintf("%.2f", r.Amount),
			fmt.Sprintf("%.2f", r.Liters),
			fmt.Sprintf("%.3f", r.PricePerLiter),
			fmt.Sprintf("%.0f", r.Odometer),
			fmt.Sprintf("%.1f", r.TripDistance),
			yesNo(r.IsFullTank),
			yesNo(r.IsEstimated),
			tr(truncate(r.Notes, 50)),
		}
		for i, c := range cells {
			align := "R"
			if i == 0 || i >= 6 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
