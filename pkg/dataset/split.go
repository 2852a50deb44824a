package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidSplit is returned for malformed split expressions
	ErrInvalidSplit = errors.New("invalid split expression")
)

// Split is a parsed split expression: a split name plus an optional
// half-open row range, e.g. "train[:10000]" or "train[10000:11000]"
type Split struct {
	Name  string
	Start int
	End   int // -1 means unbounded
}

// ParseSplit parses a split expression. Supported forms: "train",
// "train[:N]", "train[N:]", "train[N:M]".
func ParseSplit(expr string) (Split, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Split{}, fmt.Errorf("%w: empty expression", ErrInvalidSplit)
	}

	open := strings.IndexByte(expr, '[')
	if open == -1 {
		return Split{Name: expr, Start: 0, End: -1}, nil
	}

	if !strings.HasSuffix(expr, "]") || open == 0 {
		return Split{}, fmt.Errorf("%w: %q", ErrInvalidSplit, expr)
	}

	name := expr[:open]
	rangeExpr := expr[open+1 : len(expr)-1]

	parts := strings.Split(rangeExpr, ":")
	if len(parts) != 2 {
		return Split{}, fmt.Errorf("%w: range %q must be start:end", ErrInvalidSplit, rangeExpr)
	}

	split := Split{Name: name, Start: 0, End: -1}

	if parts[0] != "" {
		start, err := strconv.Atoi(parts[0])
		if err != nil || start < 0 {
			return Split{}, fmt.Errorf("%w: bad range start %q", ErrInvalidSplit, parts[0])
		}
		split.Start = start
	}

	if parts[1] != "" {
		end, err := strconv.Atoi(parts[1])
		if err != nil || end < 0 {
			return Split{}, fmt.Errorf("%w: bad range end %q", ErrInvalidSplit, parts[1])
		}
		split.End = end
	}

	if split.End != -1 && split.End <= split.Start {
		return Split{}, fmt.Errorf("%w: empty range in %q", ErrInvalidSplit, expr)
	}

	return split, nil
}

// Clamp resolves the range against a total row count, returning concrete
// start and end offsets
func (s Split) Clamp(total int) (start, end int) {
	start = s.Start
	if start > total {
		start = total
	}
	end = s.End
	if end == -1 || end > total {
		end = total
	}
	if end < start {
		end = start
	}
	return start, end
}

// String renders the split back into expression form
func (s Split) String() string {
	if s.Start == 0 && s.End == -1 {
		return s.Name
	}
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('[')
	if s.Start != 0 {
		b.WriteString(strconv.Itoa(s.Start))
	}
	b.WriteByte(':')
	if s.End != -1 {
		b.WriteString(strconv.Itoa(s.End))
	}
	b.WriteByte(']')
	return b.String()
}
