package block

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/qiniu/x/log"

	"github.com/mortarbuild/mortar/internal/testparse"
)

// TestCategory is a group of ctest tests the policy can keep out of the
// run by name pattern.
type TestCategory struct {
	Name    string
	Pattern string
	Run     bool
}

// CTest runs the ctest suite in the build dir under the recipe's test
// policy. Categories switched off are filtered with a single -E regex,
// unless the recipe's own testopts already carry an exclusion filter,
// which then stays in charge. A run with failures passes as long as
// both the numerical and the other failure count stay within their
// thresholds.
func CTest(b *Build, testopts string, categories []TestCategory) error {
	pol := b.Recipe.Test
	if !pol.Run {
		log.Infof("tests disabled by recipe")
		return nil
	}

	user, err := shellwords.Parse(testopts)
	if err != nil {
		return fmt.Errorf("parse testopts %q: %w", testopts, err)
	}

	args := []string{"--output-on-failure"}
	if n := b.Jobs(); n > 1 {
		args = append(args, "-j", strconv.Itoa(n))
	}

	var excluded, names []string
	for _, c := range categories {
		if !c.Run && c.Pattern != "" {
			excluded = append(excluded, c.Pattern)
			names = append(names, c.Name)
		}
	}
	if len(excluded) > 0 {
		if hasExcludeFlag(user) {
			log.Warnf("testopts already filter with -E, leaving %s tests to them", strings.Join(names, ", "))
		} else {
			args = append(args, "-E", "("+strings.Join(excluded, "|")+")")
		}
	}
	args = append(args, user...)

	out, runErr := b.Capture(b.BuildDir, "ctest", args...)
	report, perr := testparse.ParseCTest(out)
	if perr != nil {
		// No summary to judge by: a failed run reports its own error,
		// a clean run without one means the output format changed.
		if runErr != nil {
			return runErr
		}
		return perr
	}
	if report.Failed == 0 {
		log.Infof("all %d tests passed", report.Total)
		return nil
	}

	var numRe *regexp.Regexp
	if pol.NumericalPattern != "" {
		numRe, err = regexp.Compile(pol.NumericalPattern)
		if err != nil {
			return fmt.Errorf("numerical_pattern: %w", err)
		}
	}
	numerical, other := testparse.ClassifyFailures(report.FailedNames, numRe)
	for _, name := range report.FailedNames {
		log.Warnf("FAILED %s", name)
	}
	numFailed, otherFailed := len(numerical), len(other)
	if unnamed := report.Failed - len(report.FailedNames); unnamed > 0 {
		// Failures the summary does not name cannot be matched against
		// the numerical pattern, so they count against the other limit.
		log.Warnf("%d failed tests missing from the FAILED list", unnamed)
		otherFailed += unnamed
	}
	log.Warnf("%d of %d tests failed: %d numerical, %d other", report.Failed, report.Total, numFailed, otherFailed)
	if numFailed > pol.MaxFailedNumerical || otherFailed > pol.MaxFailedOther {
		return fmt.Errorf("%d numerical test failures (max %d), %d other (max %d)",
			numFailed, pol.MaxFailedNumerical, otherFailed, pol.MaxFailedOther)
	}
	log.Warnf("failure counts within thresholds, continuing")
	return nil
}

// hasExcludeFlag reports whether ctest arguments already carry an
// exclusion filter.
func hasExcludeFlag(args []string) bool {
	for _, a := range args {
		if a == "-E" || a == "--exclude-regex" || strings.HasPrefix(a, "--exclude-regex=") {
			return true
		}
	}
	return false
}
