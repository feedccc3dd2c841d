package handler

import (
	"fmt"

	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ReportHandler exports a plan's compliance record as an XLSX workbook
// with the status ledger and the audit trail on separate sheets.
type ReportHandler struct {
	planSvc      *service.PlanService
	lifecycleSvc *service.LifecycleService
}

func NewReportHandler(planSvc *service.PlanService, lifecycleSvc *service.LifecycleService) *ReportHandler {
	return &ReportHandler{planSvc: planSvc, lifecycleSvc: lifecycleSvc}
}

var historyHeaders = []string{"Seq", "Estado", "ID Legado", "Comentario", "Actor", "Fecha"}
var auditHeaders = []string{"Acción", "Descripción", "Actor", "Fecha"}

// Export GET /api/v1/plans/:id/export
func (h *ReportHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	planID := c.Param("id")

	plan, err := h.planSvc.Get(ctx, planID)
	if err != nil {
		ServiceError(c, err)
		return
	}
	history, err := h.lifecycleSvc.StatusHistory(ctx, planID)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	trail, err := h.lifecycleSvc.AuditHistory(ctx, planID)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	historySheet := "Historial"
	f.SetSheetName("Sheet1", historySheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, header := range historyHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(historySheet, cell, header)
		f.SetCellStyle(historySheet, cell, cell, boldStyle)
	}
	for rowIdx, assignment := range history {
		row := rowIdx + 2
		f.SetCellValue(historySheet, fmt.Sprintf("A%d", row), assignment.Seq)
		f.SetCellValue(historySheet, fmt.Sprintf("B%d", row), assignment.Status.Label())
		f.SetCellValue(historySheet, fmt.Sprintf("C%d", row), assignment.Status.LegacyID())
		f.SetCellValue(historySheet, fmt.Sprintf("D%d", row), assignment.Comment)
		f.SetCellValue(historySheet, fmt.Sprintf("E%d", row), assignment.ActorID)
		f.SetCellValue(historySheet, fmt.Sprintf("F%d", row), assignment.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	historyWidths := []float64{6, 22, 10, 40, 20, 20}
	for i, w := range historyWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(historySheet, col, col, w)
	}

	auditSheet := "Auditoría"
	if _, err := f.NewSheet(auditSheet); err != nil {
		InternalError(c, err.Error())
		return
	}
	for i, header := range auditHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(auditSheet, cell, header)
		f.SetCellStyle(auditSheet, cell, cell, boldStyle)
	}
	for rowIdx, entry := range trail {
		row := rowIdx + 2
		f.SetCellValue(auditSheet, fmt.Sprintf("A%d", row), entry.Action)
		f.SetCellValue(auditSheet, fmt.Sprintf("B%d", row), entry.Description)
		f.SetCellValue(auditSheet, fmt.Sprintf("C%d", row), entry.ActorName)
		f.SetCellValue(auditSheet, fmt.Sprintf("D%d", row), entry.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	auditWidths := []float64{20, 60, 20, 20}
	for i, w := range auditWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(auditSheet, col, col, w)
	}

	filename := fmt.Sprintf("Plan_%d_%s.xlsx", plan.Year, plan.ID[:8])
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write workbook: "+err.Error())
	}
}
