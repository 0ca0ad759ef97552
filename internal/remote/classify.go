package remote

import "strings"

// Report buckets the import command's combined output for the run
// summary. Stderr lines are partitioned case-insensitively by
// substring; a line containing both "error" and "warning" goes to
// Errors — error takes precedence.
type Report struct {
	WorkingOn   []string `json:"working_on"`
	Warnings    []string `json:"warnings"`
	Errors      []string `json:"errors"`
	OtherStderr []string `json:"other_stderr"`
}

// Classify partitions a command result's output into the report buckets.
func Classify(res *CommandResult) *Report {
	report := &Report{}

	for _, line := range nonBlankLines(res.Stdout) {
		report.WorkingOn = append(report.WorkingOn, line)
	}

	for _, line := range nonBlankLines(res.Stderr) {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error"):
			report.Errors = append(report.Errors, line)
		case strings.Contains(lower, "warning"):
			report.Warnings = append(report.Warnings, line)
		default:
			report.OtherStderr = append(report.OtherStderr, line)
		}
	}

	return report
}

func nonBlankLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
