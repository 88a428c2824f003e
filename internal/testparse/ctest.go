// Package testparse isolates the parsing of external tool output. Each
// tool gets one parser pinned by tests to literal captured output, so a
// format change in a new tool version is contained to one file.
package testparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CTestReport is the outcome of one ctest run as reported by its textual
// summary.
type CTestReport struct {
	PassedPercent int
	Failed        int
	Total         int
	FailedNames   []string
}

// Passed returns the number of tests that did not fail.
func (r *CTestReport) Passed() int {
	return r.Total - r.Failed
}

var (
	ctestSummaryRe = regexp.MustCompile(`(?m)^ *(?P<perc>\d+)% tests passed, +(?P<failed>\d+) +tests failed out of +(?P<total>\d+)`)
	ctestFailedRe  = regexp.MustCompile(`(?m)^\s*\d+ +- +(\S+) +\(.+\)\s*$`)
)

// ParseCTest extracts the test summary and the names of failed tests
// from ctest output. The summary line is required: output without it
// cannot be classified and yields an error so the caller fails loudly
// instead of guessing.
func ParseCTest(output string) (*CTestReport, error) {
	m := ctestSummaryRe.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("ctest summary line not found in output")
	}
	perc, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("ctest summary: bad percentage %q", m[1])
	}
	failed, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("ctest summary: bad failure count %q", m[2])
	}
	total, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, fmt.Errorf("ctest summary: bad total %q", m[3])
	}

	report := &CTestReport{PassedPercent: perc, Failed: failed, Total: total}

	// The name list only appears after "The following tests FAILED:".
	if idx := strings.Index(output, "The following tests FAILED:"); idx >= 0 {
		for _, fm := range ctestFailedRe.FindAllStringSubmatch(output[idx:], -1) {
			report.FailedNames = append(report.FailedNames, fm[1])
		}
	}
	return report, nil
}

// ClassifyFailures splits failed test names into those matching the
// numerical pattern and the rest.
func ClassifyFailures(names []string, numerical *regexp.Regexp) (num, other []string) {
	for _, n := range names {
		if numerical != nil && numerical.MatchString(n) {
			num = append(num, n)
			continue
		}
		other = append(other, n)
	}
	return num, other
}
