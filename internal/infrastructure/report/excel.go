// Package report renders expense exports.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// SheetName is the worksheet holding approved expenses
const SheetName = "Approved"

// XLSXContentType is the MIME type of generated workbooks
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []interface{}{
	"Expense ID", "Submitted By", "Category", "Description", "Currency",
	"Amount", "Approval %", "Approved Amount", "Rejected Amount", "Approved By", "Approved At",
}

// ExcelWriter writes approved expenses to an xlsx workbook
type ExcelWriter struct {
	logger *zap.Logger
}

// NewExcelWriter creates a new report writer
func NewExcelWriter(logger *zap.Logger) *ExcelWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelWriter{logger: logger}
}

// ContentType returns the MIME type of the output
func (ew *ExcelWriter) ContentType() string {
	return XLSXContentType
}

// WriteApproved writes one row per expense followed by a totals row
func (ew *ExcelWriter) WriteApproved(ctx context.Context, w io.Writer, expenses []*entity.Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "K1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "K", 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	totalAmount := decimal.Zero
	totalApproved := decimal.Zero
	totalRejected := decimal.Zero

	for i, e := range expenses {
		if err := ctx.Err(); err != nil {
			return err
		}

		approved := orZero(e.ApprovedAmount, e.Amount)
		rejected := orZero(e.RejectedAmount, decimal.Zero)
		pct := orZero(e.ApprovalPercentage, decimal.NewFromInt(100))

		row := []interface{}{
			e.ID,
			e.SubmittedBy,
			e.Category,
			e.Description,
			e.Currency,
			e.Amount.InexactFloat64(),
			pct.InexactFloat64(),
			approved.InexactFloat64(),
			rejected.InexactFloat64(),
			e.ApprovedBy,
			formatTime(e.ApprovedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}

		totalAmount = totalAmount.Add(e.Amount)
		totalApproved = totalApproved.Add(approved)
		totalRejected = totalRejected.Add(rejected)
	}

	totals := []interface{}{
		"Total", "", "", "", "",
		totalAmount.InexactFloat64(), "",
		totalApproved.InexactFloat64(),
		totalRejected.InexactFloat64(),
	}
	cell, err := excelize.CoordinatesToCellName(1, len(expenses)+2)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, cell, &totals); err != nil {
		return fmt.Errorf("failed to write totals: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	ew.logger.Info("Approved expense report written", zap.Int("rows", len(expenses)))
	return nil
}

func orZero(v *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if v == nil {
		return fallback
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var _ port.ReportWriter = (*ExcelWriter)(nil)
