package types

import (
	"fmt"
	"strconv"
	"strings"
)

var statusLabels = map[Status]string{
	StatusPending:           "Pending",
	StatusAccepted:          "Accepted",
	StatusWrongAnswer:       "Wrong answer",
	StatusTimeLimitExceeded: "Time limit exceeded",
	StatusRuntimeError:      "Runtime error",
	StatusCompilationError:  "Compilation error",
	StatusInternalError:     "Internal error",
	StatusError:             "Error",
}

// Label returns the display text of a status, or the raw value if unknown.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func (d Difficulty) Label() string {
	switch d {
	case DifficultyEasy:
		return "Easy"
	case DifficultyMedium:
		return "Medium"
	case DifficultyHard:
		return "Hard"
	}
	return string(d)
}

func (l Language) Label() string {
	switch l {
	case LanguagePython:
		return "Python"
	case LanguageJavaScript:
		return "JavaScript"
	case LanguageCPP:
		return "C++"
	}
	return string(l)
}

// FormatTime renders a run time in milliseconds.
func FormatTime(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64) + "ms"
}

// FormatMemory renders kilobytes below 1024 as "N KB", otherwise as megabytes.
func FormatMemory(kb float64) string {
	if kb < 1024 {
		return strconv.FormatFloat(kb, 'f', -1, 64) + " KB"
	}
	return fmt.Sprintf("%.2f MB", kb/1024)
}

// ExpandEscapes turns literal "\n" sequences in stored test data into newlines.
func ExpandEscapes(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// TestsSummary renders "passed/total" when both counts are known.
func (r *SubmissionResult) TestsSummary() string {
	if r == nil || r.PassedTests == nil || r.TotalTests == nil {
		return ""
	}
	return fmt.Sprintf("%d/%d", *r.PassedTests, *r.TotalTests)
}
