package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Panel geometry in points, matching a 7.5" e-paper module.
const (
	pageW = 800.0
	pageH = 480.0
	inset = 16.0
)

// PDFSink renders the whole panel as a single PDF page on every flush and
// replaces the file at Path atomically.
type PDFSink struct {
	path string
}

func NewPDFSink(path string) *PDFSink { return &PDFSink{path: path} }

func (s *PDFSink) Path() string { return s.path }

func (s *PDFSink) Flush(ctx context.Context, f Frame) error {
	_ = ctx
	b, err := BuildPDF(f)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, b)
}

// BuildPDF lays out a frame on one page.
func BuildPDF(f Frame) ([]byte, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetMargins(inset, inset, inset)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	byRegion := map[Region]RegionFrame{}
	for _, r := range f.Regions {
		byRegion[r.Region] = r
	}

	// Header: time large on the left, date under it, label right-aligned.
	if r := byRegion[RegionTime]; r.Present {
		pdf.SetFont("Helvetica", "B", 48)
		pdf.SetXY(inset, inset)
		pdf.CellFormat(300, 52, firstLine(r.Content), "", 0, "L", false, 0, "")
	}
	if r := byRegion[RegionDate]; r.Present {
		pdf.SetFont("Helvetica", "", 18)
		pdf.SetXY(inset, inset+56)
		pdf.CellFormat(300, 22, firstLine(r.Content), "", 0, "L", false, 0, "")
	}
	if r := byRegion[RegionLabel]; r.Present {
		pdf.SetFont("Helvetica", "B", 28)
		pdf.SetXY(pageW/2, inset)
		pdf.CellFormat(pageW/2-inset, 40, firstLine(r.Content), "", 0, "R", false, 0, "")
	}

	if r := byRegion[RegionConditions]; r.Present {
		y := inset + 96
		if r.Content.Error != "" {
			pdf.SetFont("Helvetica", "I", 20)
			pdf.SetXY(inset, y)
			pdf.CellFormat(pageW-2*inset, 26, "Conditions unavailable", "", 0, "L", false, 0, "")
		} else {
			pdf.SetFont("Helvetica", "", 24)
			x := inset
			colW := (pageW - 2*inset) / 3
			for _, line := range r.Content.Lines {
				pdf.SetXY(x, y)
				pdf.CellFormat(colW, 28, line, "", 0, "L", false, 0, "")
				x += colW
			}
		}
	}

	chartY := inset + 140
	chartW := (pageW - 3*inset) / 2
	chartH := pageH - chartY - inset
	if r := byRegion[RegionTideChart]; r.Present && r.Content.ImagePath != "" {
		placeImage(pdf, "tide", r.Content.ImagePath, inset, chartY, chartW, chartH)
	}
	if r := byRegion[RegionSwellChart]; r.Present && r.Content.ImagePath != "" {
		placeImage(pdf, "swell", r.Content.ImagePath, 2*inset+chartW, chartY, chartW, chartH)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("pdf layout: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}

// placeImage draws the image at path scaled to fit the box. A missing file
// leaves the box empty and an unusable one is replaced by a marker.
func placeImage(pdf *gofpdf.Fpdf, name, path string, x, y, w, h float64) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		drawImageMarker(pdf, x, y, w, h)
		return
	}
	cfg, format, err := CheckImage(b)
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		drawImageMarker(pdf, x, y, w, h)
		return
	}
	opts := gofpdf.ImageOptions{ImageType: pdfImageType(format)}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(b))

	iw, ih := float64(cfg.Width), float64(cfg.Height)
	scale := w / iw
	if ih*scale > h {
		scale = h / ih
	}
	pdf.ImageOptions(name, x, y, iw*scale, ih*scale, false, opts, 0, "")
}

func drawImageMarker(pdf *gofpdf.Fpdf, x, y, w, h float64) {
	pdf.Rect(x, y, w, h, "D")
	pdf.SetFont("Helvetica", "I", 16)
	pdf.SetXY(x, y+h/2-10)
	pdf.CellFormat(w, 20, "Chart unavailable", "", 0, "C", false, 0, "")
}

// CheckImage decodes the header of b and verifies that the PDF panel can
// embed it. gofpdf rejects some valid images, such as 16-bit or interlaced PNG.
func CheckImage(b []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return image.Config{}, "", err
	}
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.RegisterImageOptionsReader("check", gofpdf.ImageOptions{ImageType: pdfImageType(format)}, bytes.NewReader(b))
	if err := pdf.Error(); err != nil {
		return cfg, format, err
	}
	return cfg, format, nil
}

func pdfImageType(format string) string {
	typ := strings.ToUpper(format)
	if typ == "JPEG" {
		typ = "JPG"
	}
	return typ
}

func firstLine(c Content) string {
	if c.Error != "" {
		return "--"
	}
	if len(c.Lines) == 0 {
		return ""
	}
	return c.Lines[0]
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
