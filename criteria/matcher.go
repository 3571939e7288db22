// Package criteria holds the bleeding-risk rule definitions and evaluates them against patient facts.
package criteria

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jrsteele09/hbr-risk/clinical"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/terminology"
	"golang.org/x/text/cases"
)

// MatcherKind names a match strategy.
type MatcherKind string

const (
	KindExactCode      MatcherKind = "exact-code"
	KindCodePrefix     MatcherKind = "code-prefix"
	KindTerminologySet MatcherKind = "terminology-set"
	KindKeyword        MatcherKind = "keyword"
)

// Matcher is one match strategy. The set of implementations is closed.
type Matcher interface {
	Kind() MatcherKind
	sealed()
}

// ExactCode matches a system and code pair.
type ExactCode struct {
	Codes []clinical.Code
}

// CodePrefix matches codes in System starting with any prefix.
type CodePrefix struct {
	System   string
	Prefixes []string
}

// TerminologySet matches codes that are members of a named set.
type TerminologySet struct {
	Set string
}

// Keyword matches fact text. Keywords are stored case folded.
type Keyword struct {
	Keywords  []string
	WholeWord bool
}

func (ExactCode) Kind() MatcherKind      { return KindExactCode }
func (CodePrefix) Kind() MatcherKind     { return KindCodePrefix }
func (TerminologySet) Kind() MatcherKind { return KindTerminologySet }
func (Keyword) Kind() MatcherKind        { return KindKeyword }

func (ExactCode) sealed()      {}
func (CodePrefix) sealed()     {}
func (TerminologySet) sealed() {}
func (Keyword) sealed()        {}

// NewKeyword folds keywords for case-insensitive matching.
func NewKeyword(keywords []string, wholeWord bool) Keyword {
	fold := cases.Fold()
	k := Keyword{WholeWord: wholeWord}
	for _, w := range keywords {
		if w = strings.TrimSpace(w); w != "" {
			k.Keywords = append(k.Keywords, fold.String(w))
		}
	}
	return k
}

// MatchSpec is a disjunction of strategies, tried in the order exact, prefix, terminology, keyword.
type MatchSpec struct {
	Matchers []Matcher
}

// Empty reports whether the spec has no strategies.
func (s MatchSpec) Empty() bool {
	return len(s.Matchers) == 0
}

var strategyOrder = []MatcherKind{KindExactCode, KindCodePrefix, KindTerminologySet, KindKeyword}

// RuleMatcher evaluates match specs. It is safe for concurrent use.
type RuleMatcher struct {
	terminology terminology.Resolver
}

// NewRuleMatcher returns a matcher. A nil resolver makes every terminology-set lookup unresolvable.
func NewRuleMatcher(resolver terminology.Resolver) *RuleMatcher {
	return &RuleMatcher{terminology: resolver}
}

// Matches reports whether any strategy in spec accepts the codes or text.
// Unresolvable terminology sets count as no match; they are returned as an error only when nothing matched.
func (m *RuleMatcher) Matches(ctx context.Context, codes []clinical.Code, text string, spec MatchSpec) (bool, error) {
	var unresolved []error
	var foldedText string
	for _, kind := range strategyOrder {
		for _, matcher := range spec.Matchers {
			if matcher.Kind() != kind {
				continue
			}
			if kind == KindKeyword && foldedText == "" && text != "" {
				foldedText = cases.Fold().String(text)
			}
			ok, err := m.match(ctx, matcher, codes, foldedText)
			if err != nil {
				unresolved = append(unresolved, err)
				continue
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, errors.Join(unresolved...)
}

func (m *RuleMatcher) match(ctx context.Context, matcher Matcher, codes []clinical.Code, foldedText string) (bool, error) {
	switch mt := matcher.(type) {
	case ExactCode:
		for _, c := range codes {
			for _, want := range mt.Codes {
				if c.Code == want.Code && (want.System == "" || c.System == want.System) {
					return true, nil
				}
			}
		}
	case CodePrefix:
		for _, c := range codes {
			if mt.System != "" && c.System != mt.System {
				continue
			}
			for _, p := range mt.Prefixes {
				if strings.HasPrefix(c.Code, p) {
					return true, nil
				}
			}
		}
	case TerminologySet:
		if m.terminology == nil {
			return false, terminologyUnavailable(mt.Set)
		}
		for _, c := range codes {
			ok, err := m.terminology.Contains(ctx, mt.Set, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	case Keyword:
		for _, kw := range mt.Keywords {
			if containsKeyword(foldedText, kw, mt.WholeWord) {
				return true, nil
			}
		}
	}
	return false, nil
}

func terminologyUnavailable(set string) error {
	return apperrors.Wrapf(apperrors.ErrTerminologySetUnresolvable, "%q: no terminology resolver configured", set)
}

func containsKeyword(text, keyword string, wholeWord bool) bool {
	if text == "" || keyword == "" {
		return false
	}
	if !wholeWord {
		return strings.Contains(text, keyword)
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return false
		}
		start, end := offset+i, offset+i+len(keyword)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
