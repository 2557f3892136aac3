package verifier

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// The verifier's diagnostic format is not a designed wire format. These
// patterns cover the documented conventions; anything unrecognized degrades
// to Crashed with the raw text preserved, never to a parser failure.
var (
	// input.dfy(10,3): Error: assertion might not hold
	diagRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (Error|Warning): (.*)$`)

	// Dafny program verifier finished with 3 verified, 0 errors
	summaryRe = regexp.MustCompile(`(\d+) verified, (\d+) errors?`)

	// assert L: P failure messages name the label
	assertionRe = regexp.MustCompile(`^assertion (\S+) might not hold`)

	parseFailureRe = regexp.MustCompile(`(?i)parse error|parser error|syntax error|resolution error|could not be parsed|errors? detected during parsing`)
)

// Parse normalizes one raw invocation into a Report. Total over any input:
// a run the patterns cannot classify yields Crashed with the raw output
// attached, since a parser that fails on unexpected verifier output would
// make the whole subsystem fragile to verifier version drift.
//
// Classification is a priority chain evaluated in this exact order:
// pre-classified kill, success marker, error diagnostics, parse-failure
// token, crash fallback. The success marker must come before the diagnostic
// scan so that warning lines in a clean run are not mistaken for failures.
func Parse(raw *RawResult, jsonRequested bool) *Report {
	report := &Report{
		RunID:     raw.RunID,
		ExitCode:  raw.ExitCode,
		WallClock: raw.WallClock,
	}

	// A process killed mid-analysis may emit misleading partial output, so
	// a deadline kill carries no diagnostics at all.
	if raw.Killed {
		report.Outcome = OutcomeTimeout
		return report
	}

	if jsonRequested {
		if trimmed := strings.TrimSpace(raw.Stdout); trimmed != "" && json.Valid([]byte(trimmed)) {
			report.RawJSON = []byte(trimmed)
		}
	}

	diags, summary := scanDiagnostics(raw.Stdout)

	errorCount := 0
	for _, d := range diags {
		if d.Severity == SeverityError {
			errorCount++
		}
	}

	// Clean run: the verifier exited 0 (its own success contract) or the
	// summary line reports zero errors. Warning-only diagnostics do not
	// demote the outcome, and a Verified report carries none of them.
	if errorCount == 0 && (raw.ExitCode == 0 || (summary.found && summary.errors == 0)) {
		report.Outcome = OutcomeVerified
		return report
	}

	if errorCount > 0 {
		report.Outcome = OutcomeFailed
		report.Diagnostics = diags
		return report
	}

	if parseFailureRe.MatchString(raw.Stdout) || parseFailureRe.MatchString(raw.Stderr) {
		report.Outcome = OutcomeSyntaxError
		report.Diagnostics = diags
		return report
	}

	report.Outcome = OutcomeCrashed
	report.DebugOutput = debugText(raw)
	return report
}

type summaryLine struct {
	found    bool
	verified int
	errors   int
}

// scanDiagnostics walks the output line by line. Lines matching the
// diagnostic pattern start a new Diagnostic in emission order; other
// non-empty lines are continuation text appended to the most recent
// diagnostic's message, since multi-line error messages are common.
func scanDiagnostics(stdout string) ([]Diagnostic, summaryLine) {
	var (
		diags   []Diagnostic
		summary summaryLine
	)

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")

		if m := diagRe.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[2])
			colNo, _ := strconv.Atoi(m[3])

			d := Diagnostic{
				Line:    lineNo,
				Column:  colNo,
				Message: m[5],
			}
			if m[4] == "Error" {
				d.Severity = SeverityError
			} else {
				d.Severity = SeverityWarning
			}
			if am := assertionRe.FindStringSubmatch(d.Message); am != nil {
				d.Assertion = am[1]
			}

			diags = append(diags, d)
			continue
		}

		if m := summaryRe.FindStringSubmatch(line); m != nil {
			summary.found = true
			summary.verified, _ = strconv.Atoi(m[1])
			summary.errors, _ = strconv.Atoi(m[2])
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		if len(diags) > 0 {
			last := &diags[len(diags)-1]
			last.Message += "\n" + line
		}
	}

	return diags, summary
}

func debugText(raw *RawResult) string {
	var b strings.Builder
	if raw.Stdout != "" {
		b.WriteString(raw.Stdout)
	}
	if raw.Stderr != "" {
		if b.Len() > 0 && !strings.HasSuffix(raw.Stdout, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(raw.Stderr)
	}
	return b.String()
}
