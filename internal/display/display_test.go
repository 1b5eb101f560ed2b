package display

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "spotcheck/pkg/logx"
)

type captureSink struct {
	frames []Frame
	err    error
}

func (c *captureSink) Flush(ctx context.Context, f Frame) error {
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, f)
	return nil
}

func TestRenderTracksDirtyRegions(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	fb := NewFramebuffer(sink)

	fb.Draw(RegionTime, Text("07:13"))
	fb.Draw(RegionLabel, Text("The Wedge"))
	if err := fb.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := sink.frames[0].DirtyRegions()
	if len(got) != 2 || got[0] != RegionTime || got[1] != RegionLabel {
		t.Fatalf("dirty = %v", got)
	}

	fb.Clear(RegionTime)
	fb.Draw(RegionTime, Text("07:14"))
	if err := fb.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	f := sink.frames[1]
	if d := f.DirtyRegions(); len(d) != 1 || d[0] != RegionTime {
		t.Fatalf("second frame dirty = %v", d)
	}
	if f.Full {
		t.Fatal("partial update reported as full")
	}
	if lbl := f.Regions[RegionLabel]; !lbl.Present || lbl.Content.Lines[0] != "The Wedge" {
		t.Fatalf("label lost between frames: %+v", lbl)
	}
}

func TestMarkAllDirtyAndClearAll(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	fb := NewFramebuffer(sink)
	fb.Draw(RegionConditions, Text("64F"))
	_ = fb.Render(context.Background())

	fb.MarkAllDirty()
	_ = fb.Render(context.Background())
	if f := sink.frames[1]; !f.Full || len(f.DirtyRegions()) != int(numRegions) {
		t.Fatalf("MarkAllDirty frame = %+v", f)
	}

	fb.ClearAll()
	_ = fb.Render(context.Background())
	f := sink.frames[2]
	if f.Regions[RegionConditions].Present {
		t.Fatal("ClearAll left conditions drawn")
	}
	st := fb.Stats()
	if st.ClearAlls != 1 || st.Renders != 3 || st.FullRenders != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRenderErrorKeepsDirtyState(t *testing.T) {
	t.Parallel()
	boom := errors.New("spi bus fault")
	sink := &captureSink{err: boom}
	fb := NewFramebuffer(sink)
	fb.Draw(RegionDate, Text("Sun Mar 10"))
	if err := fb.Render(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	sink.err = nil
	if err := fb.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d := sink.frames[0].DirtyRegions(); len(d) != 1 || d[0] != RegionDate {
		t.Fatalf("dirty after failed render = %v", d)
	}
}

func TestLogSinkWritesChangedRegions(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	fb := NewFramebuffer(NewLogSink(logx.NewWriter(&buf, "info")))
	fb.Draw(RegionConditions, ErrorContent("fetch failed"))
	if err := fb.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"region":"conditions"`) || !strings.Contains(out, "error: fetch failed") {
		t.Fatalf("log output = %s", out)
	}
}

func TestPDFSinkWritesPage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	chart := filepath.Join(dir, "tide_chart.img")
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 120, 60))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(chart, img.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out", "panel.pdf")
	sink, err := OpenSink(Config{Sinks: []string{"pdf"}, PDFPath: out}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	fb := NewFramebuffer(sink)
	fb.Draw(RegionTime, Text("07:13"))
	fb.Draw(RegionDate, Text("Sun Mar 10"))
	fb.Draw(RegionLabel, Text("The Wedge"))
	fb.Draw(RegionConditions, Content{Lines: []string{"64F", "7kt WSW", "3.2ft"}})
	fb.Draw(RegionTideChart, Content{ImagePath: chart})
	fb.Draw(RegionSwellChart, Content{ImagePath: filepath.Join(dir, "missing.img")})
	if err := fb.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("output is not a pdf: %q", b[:8])
	}
}

func deepPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA64(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCheckImageRejectsSixteenBitPNG(t *testing.T) {
	t.Parallel()
	if _, _, err := CheckImage(deepPNG(t)); err == nil {
		t.Fatal("16-bit png should be rejected")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 4))); err != nil {
		t.Fatal(err)
	}
	cfg, format, err := CheckImage(buf.Bytes())
	if err != nil || format != "png" || cfg.Width != 8 {
		t.Fatalf("cfg=%+v format=%q err=%v", cfg, format, err)
	}
}

func TestPDFSinkMarksUndrawableChart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	chart := filepath.Join(dir, "swell_chart.img")
	if err := os.WriteFile(chart, deepPNG(t), 0o644); err != nil {
		t.Fatal(err)
	}
	junk := filepath.Join(dir, "tide_chart.img")
	if err := os.WriteFile(junk, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "panel.pdf")
	fb := NewFramebuffer(NewPDFSink(out))
	fb.Draw(RegionTideChart, Content{ImagePath: junk})
	fb.Draw(RegionSwellChart, Content{ImagePath: chart})
	if err := fb.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("pdf not written: %v", err)
	}
}

func TestOpenSinkRejectsUnknown(t *testing.T) {
	t.Parallel()
	if _, err := OpenSink(Config{Sinks: []string{"hdmi"}}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := OpenSink(Config{Sinks: []string{"pdf"}}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}
