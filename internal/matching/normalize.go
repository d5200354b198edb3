// Package matching is the pure core of the product identity matcher:
// attribute normalization and fuzzy grading, multi-source fusion into a
// reference profile, critical-attribute gating, and weighted candidate
// scoring. Every function here is a deterministic function of its inputs
// with no side effects, so calls are safe to run concurrently across
// independent candidates.
package matching

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

// containmentRatio is the minimum short/long length ratio for word-boundary
// containment to count as an exact match. 0.4 lets "olive" match
// "olive green" but not "v" match "v neck sweater dress".
const containmentRatio = 0.4

// cases.Fold builds a stateless transformer, so one Caser is safe to
// share across concurrently scored candidates.
var foldCaser = cases.Fold()

// Canonicalize lowercases, NFKC-normalizes, strips punctuation, and
// collapses whitespace. The result is the comparison form for all raw
// attribute values.
func Canonicalize(raw string) string {
	folded := foldCaser.String(norm.NFKC.String(raw))

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Normalize maps a raw value to its canonical token under the attribute's
// synonym groups. Values outside every group normalize to their
// canonicalized selves (identity fallback) so unlisted-but-equal values
// still match. Returns ok == false only for values that canonicalize to
// nothing.
func Normalize(raw string, def schema.AttributeDefinition) (string, bool) {
	c := Canonicalize(raw)
	if c == "" {
		return "", false
	}
	for _, g := range def.SynonymGroups {
		for _, term := range g.Terms {
			if Canonicalize(term) == c {
				return Canonicalize(g.Canonical), true
			}
		}
	}
	return c, true
}

// Grade classifies how closely two raw values match under an attribute's
// synonym groups, with a human-readable reason. Pure and symmetric:
// Grade(a, b) == Grade(b, a) for all inputs.
func Grade(ref, cand string, def schema.AttributeDefinition) (model.MatchGrade, string) {
	refC := Canonicalize(ref)
	candC := Canonicalize(cand)
	if refC == "" || candC == "" {
		return model.GradeNone, "missing value"
	}

	if refC == candC {
		return model.GradeExact, fmt.Sprintf("%q and %q are identical after normalization", ref, cand)
	}
	if contained(refC, candC) {
		return model.GradeExact, fmt.Sprintf("%q contained in %q", shorter(refC, candC), longer(refC, candC))
	}

	refTok, refOK := Normalize(ref, def)
	candTok, candOK := Normalize(cand, def)
	if refOK && candOK && refTok == candTok {
		return model.GradeFamily, fmt.Sprintf("%q and %q both normalize to %q", ref, cand, refTok)
	}

	return model.GradeNone, fmt.Sprintf("%q and %q are unrelated", ref, cand)
}

// contained reports word-boundary containment in either direction, subject
// to the minimum length ratio. Word boundaries keep "red" out of "bored";
// canonical forms are already space-separated.
func contained(a, b string) bool {
	s, l := shorter(a, b), longer(a, b)
	if len(l) == 0 {
		return false
	}
	if float64(len(s))/float64(len(l)) < containmentRatio {
		return false
	}
	return strings.Contains(" "+l+" ", " "+s+" ")
}

func shorter(a, b string) string {
	if len(a) <= len(b) {
		return a
	}
	return b
}

func longer(a, b string) string {
	if len(a) > len(b) {
		return a
	}
	return b
}
