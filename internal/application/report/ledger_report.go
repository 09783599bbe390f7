// Package report renders a request's ledger and audit trail as an Excel workbook.
package report

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/application/dispatcher"
	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
	"github.com/garyjia/approval-flow/internal/domain/ledger"
)

// Sheet names
const (
	SheetSummary = "Summary"
	SheetLedger  = "Ledger"
	SheetHistory = "History"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	ledgerHeader  = []interface{}{"Order", "Name", "Approver", "Approver Spec", "Parallel", "Require All", "Status", "Active", "Decided By", "Decided At", "Comment"}
	historyHeader = []interface{}{"#", "Occurred At", "Actor", "Action", "Step", "From", "To", "Comment"}
)

// RequestLoader returns a request together with its ledger
type RequestLoader interface {
	Load(ctx context.Context, requestID string) (*entity.Request, error)
}

// Report is a rendered workbook
type Report struct {
	Filename string
	Content  []byte
}

// LedgerReport builds ledger workbooks
type LedgerReport struct {
	loader  RequestLoader
	history port.HistoryRepository
	storage port.FileStorage
	logger  *zap.Logger
}

// NewLedgerReport creates a report builder. storage may be nil when exports are not kept.
func NewLedgerReport(loader RequestLoader, history port.HistoryRepository, storage port.FileStorage, logger *zap.Logger) *LedgerReport {
	return &LedgerReport{
		loader:  loader,
		history: history,
		storage: storage,
		logger:  logger,
	}
}

// Build renders the workbook for one request
func (r *LedgerReport) Build(ctx context.Context, requestID string) (*Report, error) {
	req, err := r.loader.Load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	entries, err := r.history.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	// NewFile starts with Sheet1
	if err := file.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := fillSummary(file, req); err != nil {
		return nil, fmt.Errorf("failed to fill summary: %w", err)
	}
	if err := fillLedger(file, req.Steps); err != nil {
		return nil, fmt.Errorf("failed to fill ledger: %w", err)
	}
	if err := fillHistory(file, entries); err != nil {
		return nil, fmt.Errorf("failed to fill history: %w", err)
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	r.logger.Info("Ledger report built",
		zap.String("request_id", requestID),
		zap.Int("steps", len(req.Steps)),
		zap.Int("history_entries", len(entries)),
		zap.Int("size", buf.Len()))

	return &Report{
		Filename: fmt.Sprintf("request-%s-ledger.xlsx", req.ID),
		Content:  buf.Bytes(),
	}, nil
}

// Export builds the workbook and keeps a copy in storage, returning its relative path
func (r *LedgerReport) Export(ctx context.Context, requestID string, at time.Time) (*Report, string, error) {
	rep, err := r.Build(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	if r.storage == nil {
		return rep, "", nil
	}

	rel := path.Join("reports", requestID, at.UTC().Format("20060102T150405")+".xlsx")
	if err := r.storage.Save(ctx, rel, rep.Content); err != nil {
		r.logger.Error("Failed to store ledger report", zap.String("request_id", requestID), zap.Error(err))
		return nil, "", err
	}

	return rep, rel, nil
}

// ArchiveOnCompletion exports the final ledger of every completed request.
// Nothing is subscribed when no storage is configured.
func (r *LedgerReport) ArchiveOnCompletion(d dispatcher.Dispatcher) {
	if r.storage == nil {
		return
	}
	d.SubscribeNamed(event.KindRequestCompleted, "ledger_archive", r.archive)
}

func (r *LedgerReport) archive(ctx context.Context, evt *event.Event) error {
	_, rel, err := r.Export(ctx, evt.RequestID, evt.OccurredAt)
	if err != nil {
		return fmt.Errorf("archive ledger of %s: %w", evt.RequestID, err)
	}
	r.logger.Info("Ledger archived",
		zap.String("request_id", evt.RequestID),
		zap.String("status", string(evt.ResultingStatus)),
		zap.String("path", rel))
	return nil
}

func fillSummary(file *excelize.File, req *entity.Request) error {
	active := "-"
	if s := ledger.ActiveStep(req.Steps); s != nil {
		active = fmt.Sprintf("%d %s (%s)", s.Order, s.Name, s.Approver.UserID)
	}

	kind := entity.MetadataGeneric
	if req.Metadata != nil {
		kind = req.Metadata.Kind()
	}

	rows := [][]interface{}{
		{"Request", req.ID},
		{"Title", req.Title},
		{"Kind", string(kind)},
		{"Creator", req.CreatorID},
		{"Department", req.DepartmentID},
		{"Status", string(req.Status)},
		{"Template", fmt.Sprintf("%s v%d", req.TemplateID, req.TemplateVersion)},
		{"Created", formatTime(&req.CreatedAt)},
		{"Published", formatTime(req.PublishedAt)},
		{"Completed", formatTime(req.CompletedAt)},
		{"Active Step", active},
	}
	for i, row := range rows {
		if err := file.SetSheetRow(SheetSummary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}
	return nil
}

func fillLedger(file *excelize.File, steps []*entity.ApprovalStep) error {
	if _, err := file.NewSheet(SheetLedger); err != nil {
		return err
	}
	if err := file.SetSheetRow(SheetLedger, "A1", &ledgerHeader); err != nil {
		return err
	}

	activeIDs := make(map[string]bool)
	for _, s := range ledger.ActiveGroup(steps) {
		activeIDs[s.ID] = true
	}

	for i, s := range steps {
		var decidedBy, decidedAt, comment string
		if s.Decision != nil {
			decidedBy = s.Decision.DecidedBy
			decidedAt = formatTime(&s.Decision.DecidedAt)
			comment = s.Decision.Comment
		}
		row := []interface{}{
			s.Order,
			s.Name,
			s.Approver.UserID,
			s.Approver.Spec.String(),
			yesNo(s.IsParallel),
			yesNo(s.RequireAllParallel),
			string(s.Status),
			yesNo(activeIDs[s.ID]),
			decidedBy,
			decidedAt,
			comment,
		}
		if err := file.SetSheetRow(SheetLedger, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func fillHistory(file *excelize.File, entries []*entity.HistoryEntry) error {
	if _, err := file.NewSheet(SheetHistory); err != nil {
		return err
	}
	if err := file.SetSheetRow(SheetHistory, "A1", &historyHeader); err != nil {
		return err
	}

	for i, e := range entries {
		row := []interface{}{
			i + 1,
			formatTime(&e.OccurredAt),
			e.ActorID,
			e.Action,
			e.StepID,
			string(e.PreviousStatus),
			string(e.NewStatus),
			e.Comment,
		}
		if err := file.SetSheetRow(SheetHistory, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
