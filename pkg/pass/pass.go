// Package pass 生成报名凭证：二维码 PNG 与可打印 PDF
package pass

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	qrDir   = "qr"
	pdfDir  = "passes"
	qrSize  = 256
	urlRoot = "/uploads"
)

// Info 渲染凭证所需的展示信息
type Info struct {
	RegistrationID string
	EventTitle     string
	EventDate      string // YYYY-MM-DD
	StartTime      string // HH:MM
	EndTime        string
	VenueName      string
	VenueLocation  string
	StudentName    string
	StudentEmail   string
	StudentNo      string
}

// Artifacts 生成结果；PDF 失败时 PDFFileURL 为 nil
type Artifacts struct {
	QRImage    string  // data:image/png;base64,...
	QRFileURL  string  // /uploads/qr/qr_<id>.png
	PDFFileURL *string // /uploads/passes/pass_<id>.pdf
	QRPNG      []byte
	PDFPath    string
}

// Generator 凭证生成接口
type Generator interface {
	Generate(ctx context.Context, info Info, payload []byte) (*Artifacts, error)
}

// FileGenerator 将凭证写入本地上传目录，文件名由报名 ID 决定
type FileGenerator struct {
	dir    string
	logger *zap.Logger
}

// NewFileGenerator 创建 FileGenerator 并确保目录存在
func NewFileGenerator(uploadDir string, logger *zap.Logger) (*FileGenerator, error) {
	for _, sub := range []string{qrDir, pdfDir} {
		if err := os.MkdirAll(filepath.Join(uploadDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("创建凭证目录失败: %w", err)
		}
	}
	return &FileGenerator{dir: uploadDir, logger: logger}, nil
}

// Generate 生成二维码与 PDF；二维码失败返回错误，PDF 失败仅记录日志
func (g *FileGenerator) Generate(ctx context.Context, info Info, payload []byte) (*Artifacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if info.RegistrationID == "" {
		return nil, fmt.Errorf("registration id is required")
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("生成二维码失败: %w", err)
	}

	qrName := "qr_" + info.RegistrationID + ".png"
	if err := writeFileAtomic(filepath.Join(g.dir, qrDir, qrName), png); err != nil {
		return nil, fmt.Errorf("写入二维码文件失败: %w", err)
	}

	out := &Artifacts{
		QRImage:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		QRFileURL: path.Join(urlRoot, qrDir, qrName),
		QRPNG:     png,
	}

	pdfName := "pass_" + info.RegistrationID + ".pdf"
	pdfPath := filepath.Join(g.dir, pdfDir, pdfName)
	if err := renderPDF(pdfPath, info, png); err != nil {
		g.logger.Warn("生成 PDF 凭证失败",
			zap.String("registration_id", info.RegistrationID),
			zap.Error(err),
		)
		return out, nil
	}

	pdfURL := path.Join(urlRoot, pdfDir, pdfName)
	out.PDFFileURL = &pdfURL
	out.PDFPath = pdfPath
	return out, nil
}

func renderPDF(dst string, info Info, png []byte) error {
	pdf := fpdf.New("P", "mm", "A5", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Event Pass", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr("EVENT PASS"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, tr(info.EventTitle), "", "C", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	rows := [][2]string{
		{"Date", info.EventDate},
		{"Time", info.StartTime + " - " + info.EndTime},
		{"Venue", info.VenueName},
		{"Location", info.VenueLocation},
		{"Attendee", info.StudentName},
		{"Email", info.StudentEmail},
		{"Student No.", info.StudentNo},
		{"Registration", info.RegistrationID},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(32, 7, tr(r[0]+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(r[1]), "", 1, "L", false, 0, "")
	}

	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	const imgW = 60.0
	pdf.ImageOptions("qr", (pageW-imgW)/2, pdf.GetY()+6, imgW, imgW, false, opts, 0, "")

	pdf.SetY(-20)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, tr("Present this pass at the entrance for check-in."), "", 1, "C", false, 0, "")

	if pdf.Err() {
		return pdf.Error()
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return err
	}
	return writeFileAtomic(dst, buf.Bytes())
}

// writeFileAtomic 先写临时文件再重命名，重复生成同一凭证时读者不会看到半写文件
func writeFileAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
