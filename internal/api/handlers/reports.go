package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/your-org/pestvision/internal/pipeline"
	"github.com/your-org/pestvision/pkg/dto"
)

const (
	reportSheet = "Detections"
	reportLimit = 100
)

var reportHeader = []string{
	"Detected At (UTC)",
	"Stream",
	"Service",
	"Pest Type",
	"Count",
	"Max Confidence",
	"AI Summary",
	"Boxes",
}

type ReportHandler struct {
	pipeline *pipeline.Pipeline
}

func NewReportHandler(p *pipeline.Pipeline) *ReportHandler {
	return &ReportHandler{pipeline: p}
}

// Export streams the recent detections as an xlsx workbook.
func (h *ReportHandler) Export(c *gin.Context) {
	views, err := h.pipeline.RecentDetections(c.Request.Context(), reportLimit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	f, err := buildWorkbook(views)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", `attachment; filename="detections.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func buildWorkbook(views []dto.DetectionView) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, label := range reportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(reportSheet, cell, label); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create wrap style: %w", err)
	}

	for i, v := range views {
		row := i + 2
		values := []interface{}{
			v.DetectedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			v.StreamID,
			v.ServiceName,
			v.PestType,
			v.PestCount,
			fmt.Sprintf("%.2f", v.MaxConfidence),
			summaryText(v),
			boxesText(v),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(reportSheet, cell, value); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
		summaryCell, _ := excelize.CoordinatesToCellName(7, row)
		boxCell, _ := excelize.CoordinatesToCellName(8, row)
		_ = f.SetCellStyle(reportSheet, summaryCell, boxCell, wrapStyle)
	}

	_ = f.SetColWidth(reportSheet, "A", "A", 24)
	_ = f.SetColWidth(reportSheet, "G", "H", 48)
	return f, nil
}

func summaryText(v dto.DetectionView) string {
	if v.AnalysisSummary == nil {
		return ""
	}
	return *v.AnalysisSummary
}

func boxesText(v dto.DetectionView) string {
	lines := make([]string, 0, len(v.Boxes))
	for _, box := range v.Boxes {
		lines = append(lines, fmt.Sprintf("label=%s (%.2f) [x=%d y=%d w=%d h=%d]",
			box.Label, box.Confidence, box.X, box.Y, box.Width, box.Height))
	}
	return strings.Join(lines, "\n")
}
