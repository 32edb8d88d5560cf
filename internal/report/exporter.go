package report

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"reflect"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JonMunkholm/loglens/internal/core"
)

// FileName is the download name of every exported summary.
const FileName = "result-summary.pdf"

// ContentType of Document.PDF.
const ContentType = "application/pdf"

// DefaultCacheSize is the number of rendered documents kept by an Exporter.
const DefaultCacheSize = 128

// A4 portrait geometry in millimetres.
const pageMargin = 10.0

// Document is a rendered summary.
type Document struct {
	ResultID uuid.UUID
	FileName string
	Layout   Layout
	PDF      []byte
	Pages    int
}

// Exporter renders results into documents. Documents are cached by result
// ID and reused only while the result still lays out the same way.
type Exporter struct {
	cache  *lru.Cache[uuid.UUID, cachedDocument]
	logger *slog.Logger
}

type cachedDocument struct {
	observedAt time.Time
	doc        *Document
}

// NewExporter returns an exporter caching up to cacheSize documents.
func NewExporter(cacheSize int, logger *slog.Logger) (*Exporter, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[uuid.UUID, cachedDocument](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}
	return &Exporter{cache: cache, logger: logger}, nil
}

// Export returns the document for r, rendering it on first use. A
// malformed record fails with a render error even when its ID was exported
// before. Results without an ID are never cached.
func (e *Exporter) Export(r core.NormalizedResult) (*Document, error) {
	layout, err := BuildLayout(r)
	if err != nil {
		e.logger.Warn("report render failed", "id", r.ID, "error", err)
		return nil, err
	}

	cacheable := r.ID != uuid.Nil
	if cacheable {
		if c, ok := e.cache.Get(r.ID); ok && c.observedAt.Equal(r.ObservedAt) && reflect.DeepEqual(c.doc.Layout, layout) {
			return c.doc, nil
		}
	}

	doc, err := renderLayout(r, layout)
	if err != nil {
		e.logger.Warn("report render failed", "id", r.ID, "error", err)
		return nil, err
	}

	if cacheable {
		e.cache.Add(r.ID, cachedDocument{observedAt: r.ObservedAt, doc: doc})
	}
	e.logger.Info("report rendered", "id", r.ID, "pages", doc.Pages, "bytes", len(doc.PDF))
	return doc, nil
}

// Render builds, rasterizes and serializes r without caching.
func Render(r core.NormalizedResult) (*Document, error) {
	layout, err := BuildLayout(r)
	if err != nil {
		return nil, err
	}
	return renderLayout(r, layout)
}

func renderLayout(r core.NormalizedResult, layout Layout) (*Document, error) {
	pdfBytes, pages, err := writePDF(Rasterize(layout), r)
	if err != nil {
		return nil, core.NewRenderError("render report", err)
	}

	return &Document{
		ResultID: r.ID,
		FileName: FileName,
		Layout:   layout,
		PDF:      pdfBytes,
		Pages:    pages,
	}, nil
}

// writePDF places img on A4 portrait pages at full printable width. Content
// taller than one page is cut into page-height strips.
func writePDF(img *image.RGBA, r core.NormalizedResult) ([]byte, int, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(r.ObservedAt.UTC())
	pdf.SetModificationDate(r.ObservedAt.UTC())
	pdf.SetTitle(Title, true)
	pdf.SetSubject(r.SourceName, true)
	pdf.SetCreator("loglens", false)

	pageW, pageH := pdf.GetPageSize()
	printW := pageW - 2*pageMargin
	printH := pageH - 2*pageMargin

	bounds := img.Bounds()
	mmPerPx := printW / float64(bounds.Dx())
	stripPx := int(printH / mmPerPx)
	if stripPx < 1 {
		stripPx = 1
	}

	pages := 0
	for top := bounds.Min.Y; top < bounds.Max.Y; top += stripPx {
		bottom := min(top+stripPx, bounds.Max.Y)
		strip := img.SubImage(image.Rect(bounds.Min.X, top, bounds.Max.X, bottom))

		var buf bytes.Buffer
		if err := png.Encode(&buf, strip); err != nil {
			return nil, 0, fmt.Errorf("encode page image: %w", err)
		}

		name := fmt.Sprintf("page-%d", pages+1)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, &buf)

		pdf.AddPage()
		pdf.ImageOptions(name, pageMargin, pageMargin, printW, float64(bottom-top)*mmPerPx, false, opts, 0, "")
		pages++
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, 0, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), pages, nil
}
