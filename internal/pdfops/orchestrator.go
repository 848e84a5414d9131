// Package pdfops merges, splits and inspects PDF documents held in memory
// by driving an Engine. It never touches the filesystem; callers decide
// where results go.
package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/pdfdesk/internal/apperrors"
	"example.com/pdfdesk/internal/pages"
)

// Input is one uploaded document.
type Input struct {
	Filename string
	Data     []byte
}

type MergeResult struct {
	Data       []byte
	TotalPages int
	TotalWords int
	Sources    []string
}

// Part is one output of a split, in request order.
type Part struct {
	Data      []byte
	PageCount int
	Label     string
	Range     pages.Range
}

type SplitResult struct {
	Parts       []Part
	Adjustments []pages.Adjustment
	SourcePages int
}

type Info struct {
	Pages int
	Words int
}

// Selector chooses ranges once the document length is known.
type Selector func(totalPages int) ([]pages.Range, []pages.Adjustment, error)

type Orchestrator struct {
	engine Engine
	policy pages.Policy
	log    logrus.FieldLogger
}

type Option func(*Orchestrator)

// WithPolicy sets how ranges past the last page are handled by Split.
func WithPolicy(p pages.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func New(engine Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{engine: engine, policy: pages.Reject, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy reports the range policy in effect.
func (o *Orchestrator) Policy() pages.Policy { return o.policy }

// IsPDFName reports whether name carries a .pdf extension.
func IsPDFName(name string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), ".pdf")
}

// Merge concatenates inputs in order into one document and totals their
// pages and words.
func (o *Orchestrator) Merge(ctx context.Context, inputs []Input) (MergeResult, error) {
	if len(inputs) < 2 {
		return MergeResult{}, fmt.Errorf("%w: merging needs at least 2 PDF files, got %d", apperrors.ErrInsufficientInputs, len(inputs))
	}
	for _, in := range inputs {
		if !IsPDFName(in.Filename) {
			return MergeResult{}, fmt.Errorf("%w: %s", apperrors.ErrNotAPDF, in.Filename)
		}
	}

	out := o.engine.NewWriter()
	defer out.Close()

	res := MergeResult{Sources: make([]string, 0, len(inputs))}
	for _, in := range inputs {
		n, words, err := o.appendAll(ctx, out, in)
		if err != nil {
			return MergeResult{}, err
		}
		res.TotalPages += n
		res.TotalWords += words
		res.Sources = append(res.Sources, in.Filename)
	}

	data, err := serialize(ctx, out)
	if err != nil {
		return MergeResult{}, err
	}
	res.Data = data
	o.log.WithFields(logrus.Fields{
		"files": len(res.Sources),
		"pages": res.TotalPages,
		"words": res.TotalWords,
		"bytes": len(data),
	}).Info("[merge] done")
	return res, nil
}

// appendAll copies every page of in into out and returns its page and word counts.
func (o *Orchestrator) appendAll(ctx context.Context, out Writer, in Input) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	doc, err := o.engine.Open(in.Data)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", in.Filename, err)
	}
	defer doc.Close()

	n := doc.PageCount()
	words, err := o.countWords(ctx, doc, in.Filename)
	if err != nil {
		return 0, 0, err
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if n > 0 {
		if err := out.AppendPages(doc, indices...); err != nil {
			return 0, 0, fmt.Errorf("%w: copy pages of %s: %v", apperrors.ErrIO, in.Filename, err)
		}
	}
	return n, words, nil
}

// countWords sums whitespace separated tokens over all pages. This is an
// approximation: ligatures, hyphenation and scripts without spaces are
// counted as the text extractor returns them.
func (o *Orchestrator) countWords(ctx context.Context, doc Document, name string) (int, error) {
	total := 0
	for i := 0; i < doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		text, err := doc.PageText(i)
		if err != nil {
			o.log.WithFields(logrus.Fields{"file": name, "page": i + 1}).WithError(err).Warn("[words] text extraction failed, counting 0")
			continue
		}
		total += len(strings.Fields(text))
	}
	return total, nil
}

// Info reports the page and word count of one document.
func (o *Orchestrator) Info(ctx context.Context, data []byte) (Info, error) {
	doc, err := o.engine.Open(data)
	if err != nil {
		return Info{}, err
	}
	defer doc.Close()

	words, err := o.countWords(ctx, doc, "")
	if err != nil {
		return Info{}, err
	}
	return Info{Pages: doc.PageCount(), Words: words}, nil
}

// Split writes one document per range, in the order given. Ranges ending
// past the last page follow the orchestrator's policy.
func (o *Orchestrator) Split(ctx context.Context, data []byte, ranges []pages.Range) (SplitResult, error) {
	return o.SplitBy(ctx, data, func(total int) ([]pages.Range, []pages.Adjustment, error) {
		var adjust []pages.Adjustment
		bounded := make([]pages.Range, 0, len(ranges))
		for _, r := range ranges {
			b, adj, err := pages.Bound(r, total, o.policy)
			if err != nil {
				return nil, nil, err
			}
			if adj != nil {
				adjust = append(adjust, *adj)
			}
			bounded = append(bounded, b)
		}
		return bounded, adjust, nil
	})
}

// SplitBy opens data once and splits it by the ranges sel picks for its
// page count.
func (o *Orchestrator) SplitBy(ctx context.Context, data []byte, sel Selector) (SplitResult, error) {
	src, err := o.engine.Open(data)
	if err != nil {
		return SplitResult{}, err
	}
	defer src.Close()

	total := src.PageCount()
	ranges, adjust, err := sel(total)
	if err != nil {
		return SplitResult{}, err
	}
	if len(ranges) == 0 {
		return SplitResult{}, fmt.Errorf("%w: no page ranges selected", apperrors.ErrInvalidRangeFormat)
	}

	res := SplitResult{Adjustments: adjust, SourcePages: total, Parts: make([]Part, 0, len(ranges))}
	for _, r := range ranges {
		part, err := o.extract(ctx, src, r)
		if err != nil {
			return SplitResult{}, err
		}
		res.Parts = append(res.Parts, part)
	}
	for _, a := range adjust {
		o.log.WithField("token", a.Token).Warn("[split] " + a.String())
	}
	o.log.WithFields(logrus.Fields{"parts": len(res.Parts), "source_pages": total}).Info("[split] done")
	return res, nil
}

func (o *Orchestrator) extract(ctx context.Context, src Document, r pages.Range) (Part, error) {
	if err := ctx.Err(); err != nil {
		return Part{}, err
	}
	last := r.End
	if total := src.PageCount(); last > total {
		last = total
	}
	if r.Start < 1 || r.Start > last {
		return Part{}, fmt.Errorf("%w: %q selects no pages of %d", apperrors.ErrOutOfBounds, r.String(), src.PageCount())
	}

	out := o.engine.NewWriter()
	defer out.Close()

	indices := make([]int, 0, last-r.Start+1)
	for p := r.Start; p <= last; p++ {
		indices = append(indices, p-1)
	}
	if err := out.AppendPages(src, indices...); err != nil {
		return Part{}, fmt.Errorf("%w: copy %s: %v", apperrors.ErrIO, r.Label(), err)
	}
	data, err := serialize(ctx, out)
	if err != nil {
		return Part{}, err
	}
	copied := pages.Range{Start: r.Start, End: last}
	return Part{Data: data, PageCount: out.PageCount(), Label: copied.Label(), Range: copied}, nil
}

func serialize(ctx context.Context, out Writer) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := out.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("%w: write document: %v", apperrors.ErrIO, err)
	}
	return buf.Bytes(), nil
}

// discard is a logger for callers that do not want orchestrator output.
func discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Quiet silences orchestrator logging.
func Quiet() Option { return WithLogger(discard()) }
