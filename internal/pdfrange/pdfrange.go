// Package pdfrange parses user supplied page selections for the split workflow
// and partitions a document into requested and filler segments.
package pdfrange

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var tokenSeparator = regexp.MustCompile(`[,\s]+`)

// Range is a 1-indexed inclusive page span.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// String renders the span as "start-end".
func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Pages returns the number of pages covered by the span.
func (r Range) Pages() int {
	return r.End - r.Start + 1
}

// Definition is a segment of the full document; Requested marks spans the user asked for.
type Definition struct {
	Range
	Requested bool `json:"requested"`
}

// ParseError reports the offending token of a page selection.
type ParseError struct {
	Token    string
	MaxPages int
	Message  string
}

func (e *ParseError) Error() string { return e.Message }

// Parse reads comma, space, or newline separated pages ("7") and ranges ("3-5").
// Every page must fall inside [1, maxPages]. The result is sorted by start page
// with adjacent and overlapping spans merged. Blank input yields no ranges.
func Parse(text string, maxPages int) ([]Range, error) {
	var ranges []Range
	for _, token := range tokenSeparator.Split(strings.TrimSpace(text), -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		r, err := parseToken(token, maxPages)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return Merge(ranges), nil
}

func parseToken(token string, maxPages int) (Range, error) {
	if strings.Contains(token, "-") {
		startText, endText, _ := strings.Cut(token, "-")
		start, errStart := strconv.Atoi(strings.TrimSpace(startText))
		end, errEnd := strconv.Atoi(strings.TrimSpace(endText))
		if errStart != nil || errEnd != nil {
			return Range{}, &ParseError{Token: token, MaxPages: maxPages,
				Message: fmt.Sprintf("Invalid range format '%s'. Use start-end.", token)}
		}
		if start < 1 || end > maxPages || start > end {
			return Range{}, &ParseError{Token: token, MaxPages: maxPages,
				Message: fmt.Sprintf("Invalid range '%s'. Pages must be between 1 and %d.", token, maxPages)}
		}
		return Range{Start: start, End: end}, nil
	}

	page, err := strconv.Atoi(token)
	if err != nil {
		return Range{}, &ParseError{Token: token, MaxPages: maxPages,
			Message: fmt.Sprintf("Invalid page format '%s'. Use numbers or ranges.", token)}
	}
	if page < 1 || page > maxPages {
		return Range{}, &ParseError{Token: token, MaxPages: maxPages,
			Message: fmt.Sprintf("Invalid page number '%s'. Must be between 1 and %d.", token, maxPages)}
	}
	return Range{Start: page, End: page}, nil
}

// Merge sorts spans by start page and folds any span that begins at or before
// the page after the current span's end.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Start < sorted[j].Start
	})

	merged := []Range{sorted[0]}
	for _, next := range sorted[1:] {
		current := &merged[len(merged)-1]
		if next.Start <= current.End+1 {
			if next.End > current.End {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// FillGaps partitions [1, total] into an ordered, contiguous sequence of
// definitions: the requested ranges plus synthesized filler gaps.
// Ranges are expected to be merged and within bounds.
func FillGaps(ranges []Range, total int) []Definition {
	if total < 1 {
		return nil
	}
	defs := make([]Definition, 0, len(ranges)*2+1)
	next := 1
	for _, r := range Merge(ranges) {
		if r.Start < next {
			r.Start = next
		}
		if r.End > total {
			r.End = total
		}
		if r.Start > r.End {
			continue
		}
		if r.Start > next {
			defs = append(defs, Definition{Range: Range{Start: next, End: r.Start - 1}})
		}
		defs = append(defs, Definition{Range: r, Requested: true})
		next = r.End + 1
	}
	if next <= total {
		defs = append(defs, Definition{Range: Range{Start: next, End: total}})
	}
	return defs
}
