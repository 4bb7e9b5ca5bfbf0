package api

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Parse the XML data (JUnit created by openshift-tests / ginkgo)
type TestStatus string

const (
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusSkipped TestStatus = "skipped"
)

// Skipped marks a test case as skipped. Presence of the element is what counts.
type Skipped struct {
	Message string `xml:"message,attr,omitempty"`
	Text    string `xml:",chardata"`
}

// Failure holds the failure output of a test case.
type Failure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Text    string `xml:",chardata"`
}

type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Element keeps any child element the model does not know about, so a
// rewritten report does not lose data.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

type TestCase struct {
	XMLName   xml.Name   `xml:"testcase"`
	Name      string     `xml:"name,attr"`
	Classname string     `xml:"classname,attr,omitempty"`
	Time      string     `xml:"time,attr,omitempty"`
	Attrs     []xml.Attr `xml:",any,attr"`
	Failures  []Failure  `xml:"failure"`
	Skipped   *Skipped   `xml:"skipped,omitempty"`
	SystemOut string     `xml:"system-out,omitempty"`
	SystemErr string     `xml:"system-err,omitempty"`
	Extra     []Element  `xml:",any"`
}

// Status returns the case status. A failure wins over a skip.
func (tc *TestCase) Status() TestStatus {
	if len(tc.Failures) > 0 {
		return TestStatusFail
	}
	if tc.Skipped != nil {
		return TestStatusSkipped
	}
	return TestStatusPass
}

// DeepCopy returns a copy that shares no memory with tc.
func (tc *TestCase) DeepCopy() TestCase {
	out := *tc
	if tc.Failures != nil {
		out.Failures = append([]Failure(nil), tc.Failures...)
	}
	if tc.Skipped != nil {
		s := *tc.Skipped
		out.Skipped = &s
	}
	if tc.Attrs != nil {
		out.Attrs = append([]xml.Attr(nil), tc.Attrs...)
	}
	if tc.Extra != nil {
		out.Extra = make([]Element, len(tc.Extra))
		for i, e := range tc.Extra {
			out.Extra[i] = Element{
				XMLName: e.XMLName,
				Attrs:   append([]xml.Attr(nil), e.Attrs...),
				Inner:   e.Inner,
			}
		}
	}
	return out
}

// FailureText joins the text of every failure element of the case.
func (tc *TestCase) FailureText() string {
	texts := make([]string, 0, len(tc.Failures))
	for _, f := range tc.Failures {
		texts = append(texts, f.Text)
	}
	return strings.Join(texts, "\n")
}

type Properties struct {
	Property []Property `xml:"property"`
}

type TestSuite struct {
	XMLName    xml.Name    `xml:"testsuite"`
	Name       string      `xml:"name,attr"`
	Tests      int         `xml:"tests,attr"`
	Skipped    *int        `xml:"skipped,attr,omitempty"`
	Failures   int         `xml:"failures,attr"`
	Time       string      `xml:"time,attr,omitempty"`
	Attrs      []xml.Attr  `xml:",any,attr"`
	Property   []Property  `xml:"property,omitempty"`
	Properties *Properties `xml:"properties,omitempty"`
	TestCases  []TestCase  `xml:"testcase"`
	Extra      []Element   `xml:",any"`
}

// SkippedCount returns the skipped attribute, zero when absent.
func (ts *TestSuite) SkippedCount() int {
	if ts.Skipped == nil {
		return 0
	}
	return *ts.Skipped
}

// SetSkipped sets the skipped attribute.
func (ts *TestSuite) SetSkipped(n int) {
	ts.Skipped = &n
}

type TestSuites struct {
	XMLName   xml.Name    `xml:"testsuites"`
	Tests     int         `xml:"tests,attr"`
	Disabled  int         `xml:"disabled,attr"`
	Errors    int         `xml:"errors,attr"`
	Failures  int         `xml:"failures,attr"`
	Time      string      `xml:"time,attr"`
	TestSuite []TestSuite `xml:"testsuite"`
}

// ParseJUnit decodes a JUnit document. Both a bare <testsuite> root and a
// <testsuites> wrapper are accepted; the suites of a wrapper are folded into
// one suite named after the first. Anything but comments and whitespace
// after the root is an error.
func ParseJUnit(r io.Reader) (*TestSuite, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("no root element found")
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing XML data: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var suite *TestSuite
		switch start.Name.Local {
		case "testsuite":
			suite = &TestSuite{}
			if err := dec.DecodeElement(suite, &start); err != nil {
				return nil, fmt.Errorf("error parsing XML data: %w", err)
			}
		case "testsuites":
			suites := &TestSuites{}
			if err := dec.DecodeElement(suites, &start); err != nil {
				return nil, fmt.Errorf("error parsing XML data with testsuites: %w", err)
			}
			if len(suites.TestSuite) == 0 {
				return nil, fmt.Errorf("no <testsuite> found in <testsuites>")
			}
			suite = foldSuites(suites.TestSuite)
		default:
			return nil, fmt.Errorf("expected element type <testsuite> but have <%s>", start.Name.Local)
		}
		if err := expectEOF(dec); err != nil {
			return nil, err
		}
		return suite, nil
	}
}

// foldSuites merges suites into the first one: cases are concatenated in
// document order and the counters are summed.
func foldSuites(suites []TestSuite) *TestSuite {
	out := suites[0]
	if len(suites) == 1 {
		return &out
	}
	log.Debugf("Found %d suites in <testsuites>, folding them into %q", len(suites), out.Name)
	out.TestCases = append([]TestCase(nil), out.TestCases...)
	skipped, hasSkipped := out.SkippedCount(), out.Skipped != nil
	for _, s := range suites[1:] {
		out.TestCases = append(out.TestCases, s.TestCases...)
		out.Tests += s.Tests
		out.Failures += s.Failures
		if s.Skipped != nil {
			skipped += *s.Skipped
			hasSkipped = true
		}
	}
	if hasSkipped {
		out.SetSkipped(skipped)
	}
	return &out
}

func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error parsing XML data after the root element: %w", err)
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return fmt.Errorf("unexpected text after the root element: %q", bytes.TrimSpace(t))
			}
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after the root element", t.Name.Local)
		default:
			return fmt.Errorf("unexpected %T after the root element", t)
		}
	}
}

// WriteJUnit serializes the suite as an UTF-8 XML document.
func WriteJUnit(w io.Writer, suite *TestSuite) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return fmt.Errorf("error encoding XML data: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

type JUnitCounter struct {
	Total    int
	Skipped  int
	Failures int
	Pass     int
}

type JUnitXMLParser struct {
	XMLFile  string
	Parsed   *TestSuite
	Counters *JUnitCounter
	Failures []string
	Cases    []*TestCase
}

func NewJUnitXMLParser(xmlFile string) (*JUnitXMLParser, error) {
	p := &JUnitXMLParser{
		XMLFile:  xmlFile,
		Counters: &JUnitCounter{},
		Cases:    []*TestCase{},
	}
	fd, err := os.Open(xmlFile)
	if err != nil {
		return nil, fmt.Errorf("error reading XML file: %w", err)
	}
	defer fd.Close()

	p.Parsed, err = ParseJUnit(fd)
	if err != nil {
		return nil, err
	}
	for i := range p.Parsed.TestCases {
		tc := &p.Parsed.TestCases[i]
		p.Counters.Total += 1
		switch tc.Status() {
		case TestStatusFail:
			p.Counters.Failures += 1
			p.Failures = append(p.Failures, fmt.Sprintf("\"%s\"", tc.Name))
		case TestStatusSkipped:
			p.Counters.Skipped += 1
		}
		p.Cases = append(p.Cases, tc)
	}
	p.Counters.Pass = p.Counters.Total - (p.Counters.Skipped + p.Counters.Failures)

	return p, nil
}
