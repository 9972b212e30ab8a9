package service

import (
	"context"
	"io"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

const reportPageSize = 500

// ReportService exports decided expenses
type ReportService interface {
	ExportApproved(ctx context.Context, actor entity.Actor, w io.Writer) error
	ContentType() string
}

type reportServiceImpl struct {
	expenseRepo port.ExpenseRepository
	writer      port.ReportWriter
	logger      Logger
}

// NewReportService creates a new ReportService
func NewReportService(expenseRepo port.ExpenseRepository, writer port.ReportWriter, logger Logger) ReportService {
	return &reportServiceImpl{
		expenseRepo: expenseRepo,
		writer:      writer,
		logger:      logger,
	}
}

// ContentType returns the MIME type of exports
func (s *reportServiceImpl) ContentType() string {
	return s.writer.ContentType()
}

// ExportApproved writes every approved expense of the actor's company to w
func (s *reportServiceImpl) ExportApproved(ctx context.Context, actor entity.Actor, w io.Writer) (err error) {
	ctx, span := startSpan(ctx, "ReportService.ExportApproved", actor, "")
	defer func() { endSpan(span, err) }()

	if !actor.IsPrivileged() || actor.CompanyID == "" {
		return apperror.Unauthorized("role %q may not export reports", actor.Role)
	}

	var all []*entity.Expense
	for offset := 0; ; offset += reportPageSize {
		page, err := s.expenseRepo.List(ctx, entity.ExpenseFilter{
			CompanyID: actor.CompanyID,
			Status:    workflow.StateApproved,
			Limit:     reportPageSize,
			Offset:    offset,
		})
		if err != nil {
			return err
		}
		all = append(all, page...)
		if len(page) < reportPageSize {
			break
		}
	}

	if err := s.writer.WriteApproved(ctx, w, all); err != nil {
		s.logger.Error("Failed to write report", "error", err, "company_id", actor.CompanyID)
		return err
	}

	s.logger.Info("Approved expense report exported", "company_id", actor.CompanyID, "rows", len(all))
	return nil
}
