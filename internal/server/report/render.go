// Package report renders the insight report artifact. Rendering is a pure
// transformation of the aggregated summary and profile data into PDF bytes;
// it touches no storage and no network.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dmitrijs2005/insightly/internal/common"
	"github.com/dmitrijs2005/insightly/internal/server/models"
	"github.com/go-pdf/fpdf"
)

// RenderParams carries everything the document needs. Name may be empty; a
// generic greeting is used instead.
type RenderParams struct {
	Name          string
	WindowStart   time.Time
	WindowEnd     time.Time
	SessionCount  int
	CurrentStreak int
	TopBiases     []models.BiasAggregate
}

const encouragement = "No recurring thought patterns stood out this period. " +
	"That is worth celebrating — keep checking in with your conversations " +
	"and your next report will track whatever comes up."

// Render produces the PDF artifact. Block order is fixed: header, date
// range, greeting, overview, bias table (or encouragement when the summary
// is empty), footer. It does not fail for any valid-shaped input; an error
// can surface only from the PDF encoder itself.
func Render(p RenderParams) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Your Insight Report", false)
	pdf.AddPage()

	// Header.
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Your Insight Report", "", 1, "C", false, 0, "")

	// Date range.
	pdf.SetFont("Helvetica", "", 11)
	rangeLine := fmt.Sprintf("%s - %s",
		p.WindowStart.Format("Jan 2, 2006"),
		p.WindowEnd.Format("Jan 2, 2006"))
	pdf.CellFormat(0, 8, rangeLine, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// Greeting.
	pdf.SetFont("Helvetica", "", 12)
	greeting := "Hi there,"
	if p.Name != "" {
		greeting = fmt.Sprintf("Hi %s,", p.Name)
	}
	pdf.CellFormat(0, 8, greeting, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	// Overview.
	pdf.MultiCell(0, 6, fmt.Sprintf(
		"Here is a look at your recent practice: %d session(s) in this period, and a current streak of %d day(s).",
		p.SessionCount, p.CurrentStreak), "", "L", false)
	pdf.Ln(4)

	if len(p.TopBiases) == 0 {
		pdf.SetFont("Helvetica", "I", 12)
		pdf.MultiCell(0, 6, encouragement, "", "L", false)
	} else {
		writeBiasTable(pdf, p.TopBiases)
	}

	// Footer.
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 5, "This report is generated from your own conversations. Small patterns noticed early are the easiest ones to work with.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRender, err)
	}
	return buf.Bytes(), nil
}

func writeBiasTable(pdf *fpdf.Fpdf, biases []models.BiasAggregate) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Most frequent thought patterns", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 245)
	pdf.CellFormat(12, 7, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(98, 7, "Pattern", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Times seen", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 7, "Avg intensity", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for i, b := range biases {
		pdf.CellFormat(12, 7, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(98, 7, b.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", b.Count), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%.0f / 100", b.AvgIntensity), "1", 1, "C", false, 0, "")
	}
}
