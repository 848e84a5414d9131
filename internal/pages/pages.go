// Package pages parses user supplied page selections ("1-3, 5, 7-9") into
// ordered, validated 1-based inclusive ranges.
package pages

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"example.com/pdfdesk/internal/apperrors"
)

// Range is a 1-based inclusive page range with Start <= End.
type Range struct {
	Start int
	End   int
}

// Len is the number of pages covered by r.
func (r Range) Len() int { return r.End - r.Start + 1 }

func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return strconv.Itoa(r.Start) + "-" + strconv.Itoa(r.End)
}

// Label is the human readable form used on result pages.
func (r Range) Label() string {
	if r.Start == r.End {
		return "page " + r.String()
	}
	return "pages " + r.String()
}

// Policy decides what happens when a range ends past the last page.
type Policy int

const (
	// Reject fails with ErrOutOfBounds.
	Reject Policy = iota
	// Clamp lowers the end to the last page and reports an Adjustment.
	Clamp
)

func (p Policy) String() string {
	switch p {
	case Clamp:
		return "clamp"
	default:
		return "reject"
	}
}

// ParsePolicy accepts "clamp" or "reject" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject", "":
		return Reject, nil
	case "clamp":
		return Clamp, nil
	}
	return Reject, fmt.Errorf("unknown range policy %q (want clamp or reject)", s)
}

// Adjustment records a range that was clamped to the document length.
type Adjustment struct {
	Token     string
	Requested int
	Limit     int
}

func (a Adjustment) String() string {
	return fmt.Sprintf("range %q ends at page %d, document has %d pages; clamped", a.Token, a.Requested, a.Limit)
}

// Parse turns spec into ranges in the order the tokens appear. Duplicates
// and overlaps are kept: each range becomes its own output.
//
// totalPages <= 0 means the document length is not known yet and only the
// syntax is checked; Bound applies the policy once it is.
func Parse(spec string, totalPages int, policy Policy) ([]Range, []Adjustment, error) {
	var (
		ranges []Range
		adjust []Adjustment
	)
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		r, err := parseToken(tok)
		if err != nil {
			return nil, nil, err
		}
		if totalPages > 0 {
			bounded, adj, err := bound(tok, r, totalPages, policy)
			if err != nil {
				return nil, nil, err
			}
			if adj != nil {
				adjust = append(adjust, *adj)
			}
			r = bounded
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, nil, fmt.Errorf("%w: no page ranges in %q", apperrors.ErrInvalidRangeFormat, spec)
	}
	return ranges, adjust, nil
}

// Bound checks r against totalPages under policy. The returned Adjustment
// is non-nil only when r was clamped.
func Bound(r Range, totalPages int, policy Policy) (Range, *Adjustment, error) {
	if r.Start < 1 || r.Start > r.End {
		return Range{}, nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidRangeFormat, r.String())
	}
	return bound(r.String(), r, totalPages, policy)
}

func bound(tok string, r Range, totalPages int, policy Policy) (Range, *Adjustment, error) {
	if r.Start > totalPages {
		return Range{}, nil, fmt.Errorf("%w: %q starts after the last page (%d)", apperrors.ErrOutOfBounds, tok, totalPages)
	}
	if r.End <= totalPages {
		return r, nil, nil
	}
	if policy != Clamp {
		return Range{}, nil, fmt.Errorf("%w: %q exceeds the last page (%d)", apperrors.ErrOutOfBounds, tok, totalPages)
	}
	adj := &Adjustment{Token: tok, Requested: r.End, Limit: totalPages}
	return Range{Start: r.Start, End: totalPages}, adj, nil
}

func parseToken(tok string) (Range, error) {
	if !strings.Contains(tok, "-") {
		p, err := parsePage(tok, tok)
		if err != nil {
			return Range{}, err
		}
		return Range{Start: p, End: p}, nil
	}
	parts := strings.Split(tok, "-")
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidRangeFormat, tok)
	}
	start, err := parsePage(tok, parts[0])
	if err != nil {
		return Range{}, err
	}
	end, err := parsePage(tok, parts[1])
	if err != nil {
		return Range{}, err
	}
	if start > end {
		return Range{}, fmt.Errorf("%w: %q starts after it ends", apperrors.ErrInvalidRangeFormat, tok)
	}
	return Range{Start: start, End: end}, nil
}

func parsePage(tok, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a page number", apperrors.ErrInvalidRangeFormat, tok)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %q pages start at 1", apperrors.ErrInvalidRangeFormat, tok)
	}
	return n, nil
}

// SplitAt cuts a document in two after page: [1, page] and [page+1, total].
func SplitAt(page, totalPages int) ([]Range, error) {
	if page < 1 || page >= totalPages {
		return nil, fmt.Errorf("%w: split page must be between 1 and %d", apperrors.ErrOutOfBounds, totalPages-1)
	}
	return []Range{{Start: 1, End: page}, {Start: page + 1, End: totalPages}}, nil
}

// Singles parses a comma separated list of single pages. Unlike Parse the
// result is deduplicated and sorted, one range per page.
func Singles(spec string, totalPages int) ([]Range, error) {
	seen := make(map[int]struct{})
	var nums []int
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		p, err := parsePage(tok, tok)
		if err != nil {
			return nil, err
		}
		if totalPages > 0 && p > totalPages {
			return nil, fmt.Errorf("%w: page numbers must be between 1 and %d", apperrors.ErrOutOfBounds, totalPages)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		nums = append(nums, p)
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("%w: no pages in %q", apperrors.ErrInvalidRangeFormat, spec)
	}
	sort.Ints(nums)
	out := make([]Range, len(nums))
	for i, p := range nums {
		out[i] = Range{Start: p, End: p}
	}
	return out, nil
}
