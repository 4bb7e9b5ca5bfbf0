package result

import (
	"regexp"
	"strings"
)

// Test titles are produced by the ginkgo suites of openshift-tests-private:
//
//	name        = [ sig-tag ws ] rest
//	sig-tag     = "[" { char - "]" } "]"
//	rest        = { token ws } [ author-mark ] { importance "-" case-id "-" } description [ suite-tag ]
//	author-mark = "Author:" author "-"
//	case-id     = 5*digit
//	suite-tag   = "[Suite:" { char } "]"
//
// Example:
//
//	[sig-operators] OLM should Author:bob-High-30001-High-30002-desc [Suite:openshift/conformance/parallel]

const (
	UnknownAuthor = "unknown"
	suiteMarker   = "[Suite:"
)

var (
	caseIDRegex = regexp.MustCompile(`\d{5,}-`)
	authorRegex = regexp.MustCompile(`Author:([^\s-]+)-`)
)

// TestTitle is the typed form of an encoded test name.
type TestTitle struct {
	Raw string
	// Sig is the content of the leading bracket tag, e.g. "sig-operators".
	Sig string
	// Token is the second whitespace-delimited token of the name, the
	// candidate subteam.
	Token   string
	Author  string
	CaseIDs []string
	// Description is the text following the case ID prefix, without the
	// suite tag. For names without case IDs it equals Disambiguator.
	Description string
	// Disambiguator is the name without the sig tag and the suite tag.
	Disambiguator string
}

// ParseTitle parses a test name. It never fails: missing parts are left
// empty, a missing author becomes UnknownAuthor.
func ParseTitle(name string) TestTitle {
	t := TestTitle{Raw: name, Author: UnknownAuthor}

	rest := name
	fields := strings.Fields(name)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "[") && strings.HasSuffix(fields[0], "]") {
		t.Sig = strings.TrimSuffix(strings.TrimPrefix(fields[0], "["), "]")
		rest = strings.TrimLeft(strings.TrimPrefix(strings.TrimLeft(name, " \t"), fields[0]), " \t")
	}
	if len(fields) > 1 {
		t.Token = fields[1]
	}

	if m := authorRegex.FindStringSubmatch(name); m != nil {
		t.Author = m[1]
	}

	t.Disambiguator = cleanTitle(rest)

	ids := caseIDRegex.FindAllString(name, -1)
	if len(ids) == 0 {
		t.Description = t.Disambiguator
		return t
	}
	for _, id := range ids {
		t.CaseIDs = append(t.CaseIDs, strings.TrimSuffix(id, "-"))
	}
	// text between the first and the second occurrence of the last ID token
	t.Description = cleanTitle(strings.Split(name, ids[len(ids)-1])[1])
	return t
}

// cleanTitle cuts the suite tag and drops single quotes.
func cleanTitle(s string) string {
	if i := strings.Index(s, suiteMarker); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "'", "")
}
