package badgehub

import (
	"fmt"
	"strconv"
	"strings"
)

type selectorKind int

const (
	kindDraft selectorKind = iota
	kindLatest
	kindRevision
)

// RevisionSelector is the tagged variant used to address a version of a
// project: the draft alias, the latest alias, or an explicit revision
// number. The zero value selects the draft.
//
// The asymmetry between the cases is the access-control core of the hub:
// the draft is reachable only through the literal alias, and explicit
// numbers only resolve once that revision has been published.
type RevisionSelector struct {
	kind selectorKind
	num  int
}

// SelectDraft addresses the project's single mutable draft version.
func SelectDraft() RevisionSelector { return RevisionSelector{kind: kindDraft} }

// SelectLatest addresses the newest published revision.
func SelectLatest() RevisionSelector { return RevisionSelector{kind: kindLatest} }

// SelectRevision addresses one explicit published revision.
func SelectRevision(n int) RevisionSelector {
	return RevisionSelector{kind: kindRevision, num: n}
}

// IsDraft reports whether the selector is the draft alias.
func (s RevisionSelector) IsDraft() bool { return s.kind == kindDraft }

// IsLatest reports whether the selector is the latest alias.
func (s RevisionSelector) IsLatest() bool { return s.kind == kindLatest }

// Number returns the explicit revision number and whether the selector
// carries one.
func (s RevisionSelector) Number() (int, bool) {
	if s.kind != kindRevision {
		return 0, false
	}
	return s.num, true
}

// String renders the selector as its URL path segment: "draft", "latest"
// or "rev<N>".
func (s RevisionSelector) String() string {
	switch s.kind {
	case kindLatest:
		return "latest"
	case kindRevision:
		return fmt.Sprintf("rev%d", s.num)
	default:
		return "draft"
	}
}

// ParseRevisionSelector parses a URL path segment into a selector.
// Accepted forms are the aliases "draft" and "latest" and "rev<N>" with a
// non-negative decimal N. Anything else is a caller error.
func ParseRevisionSelector(segment string) (RevisionSelector, error) {
	switch segment {
	case "draft":
		return SelectDraft(), nil
	case "latest":
		return SelectLatest(), nil
	}
	if rest, ok := strings.CutPrefix(segment, "rev"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 0 && !strings.HasPrefix(rest, "+") {
			return SelectRevision(n), nil
		}
	}
	return RevisionSelector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, segment)
}
