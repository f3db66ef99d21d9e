package payroll

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// RenderSettlementAdvice writes a PDF summary of a transfer batch to w.
func RenderSettlementAdvice(w io.Writer, result TransferResult) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Settlement Advice")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Reference: %s", result.ReferenceNumber))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Transfer date: %s", result.TransferDate.Format("2006-01-02")))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Bank: %s  Account: ****%s", result.BankCode, result.AccountLast4))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(70, 7, "Payroll", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Employee", "1", 0, "L", false, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, "Bank fee", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range result.Success {
		pdf.CellFormat(70, 7, item.PayrollID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, item.EmployeeID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, item.BankFee.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Payments: %d", result.Summary.Count))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Amount: %s", result.Summary.Amount.StringFixed(2)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Bank fees: %s", result.Summary.BankFees.StringFixed(2)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Net amount: %s", result.Summary.NetAmount.StringFixed(2)))

	if len(result.Pending) > 0 || len(result.Failed) > 0 {
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(0, 7, fmt.Sprintf("Not transferred: %d pending, %d failed", len(result.Pending), len(result.Failed)))
	}
	return pdf.Output(w)
}
