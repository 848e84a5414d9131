package pdfops

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	pdftext "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"example.com/pdfdesk/internal/apperrors"
)

func init() {
	// keep pdfcpu from creating a user config dir and installing fonts
	api.DisableConfigDir()
}

var errClosed = errors.New("document is closed")

// PDFCPUEngine reads, copies and writes pages with pdfcpu and extracts
// page text with ledongthuc/pdf.
type PDFCPUEngine struct {
	relaxed bool
}

// NewPDFCPUEngine returns an engine; relaxed selects pdfcpu's relaxed
// validation, which accepts most real-world files.
func NewPDFCPUEngine(relaxed bool) *PDFCPUEngine {
	return &PDFCPUEngine{relaxed: relaxed}
}

func (e *PDFCPUEngine) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if e.relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	} else {
		conf.ValidationMode = model.ValidationStrict
	}
	return conf
}

func (e *PDFCPUEngine) Open(data []byte) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptDocument, r)
		}
	}()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", apperrors.ErrCorruptDocument)
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), e.config())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptDocument, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptDocument, err)
	}
	return &pdfcpuDoc{ctx: ctx, data: data}, nil
}

func (e *PDFCPUEngine) NewWriter() Writer {
	return &pdfcpuWriter{conf: e.config}
}

type pdfcpuDoc struct {
	ctx  *model.Context
	data []byte

	text    *pdftext.Reader
	textErr error
}

func (d *pdfcpuDoc) PageCount() int {
	if d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

func (d *pdfcpuDoc) PageText(index int) (text string, err error) {
	if d.ctx == nil {
		return "", errClosed
	}
	if index < 0 || index >= d.ctx.PageCount {
		return "", fmt.Errorf("page index %d out of range", index)
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract text of page %d: %v", index+1, r)
		}
	}()
	if d.text == nil && d.textErr == nil {
		d.text, d.textErr = pdftext.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	}
	if d.textErr != nil {
		return "", d.textErr
	}
	p := d.text.Page(index + 1)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (d *pdfcpuDoc) Close() error {
	d.ctx, d.text, d.data = nil, nil, nil
	return nil
}

// pdfcpuWriter keeps one extracted context per AppendPages call and joins
// them on Serialize.
type pdfcpuWriter struct {
	conf     func() *model.Configuration
	segments []*model.Context
	pages    int
	closed   bool
}

func (w *pdfcpuWriter) AppendPages(src Document, indices ...int) error {
	if w.closed {
		return errClosed
	}
	doc, ok := src.(*pdfcpuDoc)
	if !ok {
		return fmt.Errorf("pdfcpu writer cannot copy from %T", src)
	}
	if doc.ctx == nil {
		return errClosed
	}
	if len(indices) == 0 {
		return nil
	}
	nrs := make([]int, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= doc.ctx.PageCount {
			return fmt.Errorf("page index %d out of range", idx)
		}
		nrs[i] = idx + 1
	}
	seg, err := pdfcpu.ExtractPages(doc.ctx, nrs, false)
	if err != nil {
		return err
	}
	w.segments = append(w.segments, seg)
	w.pages += len(nrs)
	return nil
}

func (w *pdfcpuWriter) PageCount() int { return w.pages }

func (w *pdfcpuWriter) Serialize(out io.Writer) error {
	if w.closed {
		return errClosed
	}
	switch len(w.segments) {
	case 0:
		return errors.New("no pages to write")
	case 1:
		return api.WriteContext(w.segments[0], out)
	}
	rs := make([]io.ReadSeeker, 0, len(w.segments))
	for _, seg := range w.segments {
		var buf bytes.Buffer
		if err := api.WriteContext(seg, &buf); err != nil {
			return err
		}
		rs = append(rs, bytes.NewReader(buf.Bytes()))
	}
	return api.MergeRaw(rs, out, false, w.conf())
}

func (w *pdfcpuWriter) Close() error {
	w.segments, w.closed = nil, true
	return nil
}
