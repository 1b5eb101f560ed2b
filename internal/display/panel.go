// Package display models the board's persistent panel.
//
// Drawing only changes in-memory region state; nothing reaches the output
// until Render. A Framebuffer tracks which regions changed since the last
// render and hands a Frame to its Sink.
package display

import (
	"context"
	"strings"
)

// Region is a fixed area of the panel.
type Region uint8

const (
	RegionTime Region = iota
	RegionDate
	RegionLabel
	RegionConditions
	RegionTideChart
	RegionSwellChart

	numRegions
)

var regionNames = [numRegions]string{
	RegionTime:       "time",
	RegionDate:       "date",
	RegionLabel:      "label",
	RegionConditions: "conditions",
	RegionTideChart:  "tide_chart",
	RegionSwellChart: "swell_chart",
}

func (r Region) String() string {
	if r >= numRegions {
		return "unknown"
	}
	return regionNames[r]
}

// Regions returns every region in draw order.
func Regions() []Region {
	out := make([]Region, 0, numRegions)
	for r := Region(0); r < numRegions; r++ {
		out = append(out, r)
	}
	return out
}

// Content is what a region shows: text lines, an image, or an error marker.
type Content struct {
	Lines     []string `json:"lines,omitempty"`
	ImagePath string   `json:"image,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Text is a convenience for single-line content.
func Text(s string) Content { return Content{Lines: []string{s}} }

// ErrorContent marks a region as showing an error indicator.
func ErrorContent(msg string) Content { return Content{Error: msg} }

func (c Content) String() string {
	switch {
	case c.Error != "":
		return "error: " + c.Error
	case c.ImagePath != "":
		return "image: " + c.ImagePath
	default:
		return strings.Join(c.Lines, " / ")
	}
}

// Panel is the drawing surface used by the dispatch loop.
type Panel interface {
	// ClearAll erases every region.
	ClearAll()
	// Clear erases one region.
	Clear(r Region)
	// Draw replaces the content of one region.
	Draw(r Region, c Content)
	// MarkAllDirty forces the next Render to push every region.
	MarkAllDirty()
	// Render pushes pending changes to the output. Errors are fatal to the caller.
	Render(ctx context.Context) error
}

func (r Region) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
