// Package export turns a summary artifact into a paginated PDF document.
//
// Export is a pure transformation: text is reflowed into fixed-width lines,
// lines are placed with a running vertical cursor, and a new page starts
// whenever the cursor passes the usable page height.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/mattn/go-runewidth"
	"github.com/mitchellh/go-wordwrap"
)

// ErrEmptyText is returned when there is nothing but whitespace to export.
var ErrEmptyText = errors.New("export: text is empty")

// DefaultFilename is the download name for an exported summary.
const DefaultFilename = "esg_summary.pdf"

// Options controls wrapping and page geometry. Lengths are in millimetres.
type Options struct {
	WrapWidth   int     // columns per line
	LeftMargin  float64 // x of every line
	TopMargin   float64 // cursor reset position on a new page
	BottomLimit float64 // a cursor beyond this starts a new page
	LineHeight  float64 // cursor increment per line
	FontSize    float64 // points
	Title       string  // document metadata
	// FontFile is an optional UTF-8 TrueType font. Without it the core
	// Helvetica font is used, which only covers cp1252; other characters
	// (Cyrillic, CJK, ...) are printed as '.'.
	FontFile    string
}

// DefaultOptions fits an A4 portrait body area.
func DefaultOptions() Options {
	return Options{
		WrapWidth:   90,
		LeftMargin:  15,
		TopMargin:   20,
		BottomLimit: 280,
		LineHeight:  7,
		FontSize:    11,
		Title:       "ESG Executive Summary",
	}
}

// Line is one placed line of text.
type Line struct {
	Y    float64
	Text string
}

// Page is the ordered lines of one page.
type Page struct {
	Lines []Line
}

// Layout is the paginated form of a text.
type Layout struct {
	Pages []Page
}

// LineCount returns the number of placed lines across all pages.
func (l *Layout) LineCount() int {
	n := 0
	for _, p := range l.Pages {
		n += len(p.Lines)
	}
	return n
}

// Exporter renders summaries to PDF.
type Exporter struct {
	opts Options
}

// New creates an Exporter. Zero fields in opts take DefaultOptions values.
func New(opts Options) *Exporter {
	def := DefaultOptions()
	if opts.WrapWidth <= 0 {
		opts.WrapWidth = def.WrapWidth
	}
	if opts.LeftMargin <= 0 {
		opts.LeftMargin = def.LeftMargin
	}
	if opts.TopMargin <= 0 {
		opts.TopMargin = def.TopMargin
	}
	if opts.BottomLimit <= opts.TopMargin {
		opts.BottomLimit = def.BottomLimit
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = def.LineHeight
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	if opts.Title == "" {
		opts.Title = def.Title
	}
	return &Exporter{opts: opts}
}

// Options returns the effective options.
func (e *Exporter) Options() Options { return e.opts }

// LinesPerPage is the number of lines that fit before the cursor passes
// BottomLimit.
func (e *Exporter) LinesPerPage() int {
	return int((e.opts.BottomLimit-e.opts.TopMargin)/e.opts.LineHeight) + 1
}

// Wrap reflows text into lines of at most WrapWidth display columns. Words
// longer than a line are broken. Blank lines are kept as paragraph breaks.
func (e *Exporter) Wrap(text string) []string {
	width := e.opts.WrapWidth
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")

	var out []string
	for _, para := range strings.Split(text, "\n") {
		para = strings.TrimRight(para, " ")
		if para == "" {
			out = append(out, "")
			continue
		}
		for _, ln := range strings.Split(wordwrap.WrapString(para, uint(width)), "\n") {
			out = append(out, hardBreak(ln, width)...)
		}
	}
	// Trailing blank lines only push content onto empty pages.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// hardBreak splits s into chunks no wider than width columns.
func hardBreak(s string, width int) []string {
	if runewidth.StringWidth(s) <= width {
		return []string{s}
	}
	var (
		out []string
		b   strings.Builder
		w   int
	)
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > width && b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
			w = 0
		}
		b.WriteRune(r)
		w += rw
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// Paginate places lines with a running cursor. The cursor starts at
// TopMargin and advances by LineHeight per line; when it exceeds
// BottomLimit a new page begins and the cursor resets to TopMargin.
func (e *Exporter) Paginate(lines []string) *Layout {
	layout := &Layout{Pages: []Page{{}}}
	y := e.opts.TopMargin
	for _, ln := range lines {
		if y > e.opts.BottomLimit {
			layout.Pages = append(layout.Pages, Page{})
			y = e.opts.TopMargin
		}
		cur := &layout.Pages[len(layout.Pages)-1]
		cur.Lines = append(cur.Lines, Line{Y: y, Text: ln})
		y += e.opts.LineHeight
	}
	return layout
}

// Layout wraps and paginates text. Whitespace-only text is rejected.
func (e *Exporter) Layout(text string) (*Layout, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return e.Paginate(e.Wrap(text)), nil
}

// Export writes text as a PDF document to w and returns its layout.
func (e *Exporter) Export(text string, w io.Writer) (*Layout, error) {
	layout, err := e.Layout(text)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(e.opts.Title, true)
	pdf.SetCreator("esginsight", true)
	pdf.SetAutoPageBreak(false, 0)
	tr := e.setFont(pdf)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("export: load font: %w", err)
	}

	for _, page := range layout.Pages {
		pdf.AddPage()
		for _, ln := range page.Lines {
			if ln.Text == "" {
				continue
			}
			pdf.Text(e.opts.LeftMargin, ln.Y, tr(ln.Text))
		}
	}

	if err := pdf.Output(w); err != nil {
		return nil, fmt.Errorf("export: render pdf: %w", err)
	}
	return layout, nil
}

// setFont selects the body font and returns the text translator it needs.
func (e *Exporter) setFont(pdf *fpdf.Fpdf) func(string) string {
	if e.opts.FontFile == "" {
		pdf.SetFont("Helvetica", "", e.opts.FontSize)
		return pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.AddUTF8Font("body", "", e.opts.FontFile)
	pdf.SetFont("body", "", e.opts.FontSize)
	return func(s string) string { return s }
}
