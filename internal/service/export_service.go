package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"cems/internal/model"
	"cems/internal/repository"
)

// ── 导出模块业务错误 ──

var ErrExportGenerateFail = errors.New("failed to generate export file")

// ExportService 导出业务接口
//
// 设计说明：
//   - 活动报名名单导出为 Excel (.xlsx)，权限与查看名单一致
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - 单 Sheet：标题行 + 表头 + 每个报名一行，末尾附出勤/评分汇总
type ExportService interface {
	// ExportEventRegistrations 导出活动报名名单
	ExportEventRegistrations(ctx context.Context, eventID string, callerID string, callerRole model.Role) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

var rosterHeaders = []string{
	"No.", "First Name", "Last Name", "Email", "Student No.", "Department", "Phone",
	"Status", "Registered At", "Rating", "Feedback",
}

// ═══════════════════════════════════════════════════════════
// ExportEventRegistrations 导出报名名单
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "Registrations"
//   - 第 1 行：活动标题 + 日期（合并单元格）
//   - 第 2 行：表头
//   - 数据行按报名时间升序
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportEventRegistrations(ctx context.Context, eventID string, callerID string, callerRole model.Role) (*bytes.Buffer, string, error) {
	// 1. 查询活动并校验权限
	event, err := s.repo.Event.GetByID(ctx, eventID)
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrEventNotFound
		}
		s.logger.Error("查询活动失败", zap.String("id", eventID), zap.Error(err))
		return nil, "", err
	}
	if !model.CanManageEvent(callerRole, callerID, event.OrganizerID) {
		return nil, "", ErrNoPermission
	}

	// 2. 查询全部报名
	regs, err := s.repo.Registration.ListAllByEvent(ctx, eventID)
	if err != nil {
		s.logger.Error("查询报名名单失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, "", err
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Registrations"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	widths := []float64{6, 16, 16, 28, 14, 18, 16, 12, 22, 8, 40}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s (%s %s-%s)",
		event.Title, event.DateString(), model.ClockString(event.StartTime), model.ClockString(event.EndTime)))
	f.MergeCell(sheetName, "A1", cell(colName(len(rosterHeaders)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	for i, h := range rosterHeaders {
		f.SetCellValue(sheetName, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell(colName(len(rosterHeaders)-1), row), headerStyle)

	// 数据行
	var attended, rated, ratingSum int
	for i := range regs {
		r := &regs[i]
		row++
		values := []interface{}{i + 1, "", "", "", "", "", "", string(r.Status), formatTime(r.RegisteredAt), "", ""}
		if st := r.Student; st != nil {
			values[1], values[2], values[3] = st.FirstName, st.LastName, st.Email
			values[4], values[5], values[6] = st.StudentNo, st.Department, st.Phone
		}
		if r.FeedbackRating != nil {
			values[9] = *r.FeedbackRating
			rated++
			ratingSum += *r.FeedbackRating
		}
		if r.FeedbackText != nil {
			values[10] = *r.FeedbackText
		}
		if r.Status == model.RegistrationAttended {
			attended++
		}
		for col, v := range values {
			f.SetCellValue(sheetName, cell(colName(col), row), v)
		}
	}

	// 汇总
	row += 2
	f.SetCellValue(sheetName, cell("A", row), "Total")
	f.SetCellValue(sheetName, cell("B", row), len(regs))
	row++
	f.SetCellValue(sheetName, cell("A", row), "Attended")
	f.SetCellValue(sheetName, cell("B", row), attended)
	if rated > 0 {
		row++
		f.SetCellValue(sheetName, cell("A", row), "Avg Rating")
		f.SetCellValue(sheetName, cell("B", row), float64(ratingSum)/float64(rated))
	}

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("registrations_%s.xlsx", event.EventID)
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
