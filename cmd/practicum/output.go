package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"practicum/internal/catalog"
	"practicum/internal/comments"
	"practicum/pkg/types"
)

func printTasks(w io.Writer, entries []catalog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No tasks found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDIFFICULTY\tTHEME\tSOLVED")
	for _, e := range entries {
		solved := ""
		if e.Solved {
			solved = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Title, e.Difficulty.Label(), e.ThemeTitle, solved)
	}
	_ = tw.Flush()
}

func printTask(w io.Writer, task *types.Task) {
	fmt.Fprintf(w, "#%d %s [%s]\n", task.ID, task.Title, task.Difficulty.Label())
	fmt.Fprintf(w, "Limits: %s, %d MB\n\n", types.FormatTime(float64(task.TimeLimitMS)), task.MemoryLimitMB)
	fmt.Fprintln(w, types.ExpandEscapes(task.Description))
	for i, ex := range task.ExampleTests {
		fmt.Fprintf(w, "\nExample %d\nInput:\n%s\nOutput:\n%s\n", i+1, types.ExpandEscapes(ex.Input), types.ExpandEscapes(ex.Output))
	}
}

func printThemes(w io.Writer, themes []types.Theme) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPARENT")
	for _, th := range themes {
		parent := "-"
		if th.ParentThemeID != nil {
			parent = fmt.Sprint(*th.ParentThemeID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", th.ID, th.Title, parent)
	}
	_ = tw.Flush()
}

func printResult(w io.Writer, r *types.SubmissionResult) {
	fmt.Fprintf(w, "Verdict: %s\n", r.Status.Label())
	if tests := r.TestsSummary(); tests != "" {
		fmt.Fprintf(w, "Tests passed: %s\n", tests)
	}
	if r.RunTime > 0 || r.MemoryUsedKB > 0 {
		fmt.Fprintf(w, "Time: %s  Memory: %s\n", types.FormatTime(r.RunTime), types.FormatMemory(r.MemoryUsedKB))
	}
	if r.Message != "" {
		fmt.Fprintln(w, r.Message)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
	if r.FailedTestInput != "" || r.ExpectedOutput != "" {
		fmt.Fprintf(w, "Input:\n%s\nExpected:\n%s\nActual:\n%s\n",
			types.ExpandEscapes(r.FailedTestInput), types.ExpandEscapes(r.ExpectedOutput), types.ExpandEscapes(r.ActualOutput))
	}
}

func printHistory(w io.Writer, records []types.SubmissionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No submissions yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tLANGUAGE\tSTATUS\tTIME")
	for _, rec := range records {
		runTime := "-"
		if rec.RunTime != nil {
			runTime = types.FormatTime(*rec.RunTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", rec.ID, rec.Date, rec.Language.Label(), rec.Status.Label(), runTime)
	}
	_ = tw.Flush()
}

func printComments(w io.Writer, items []comments.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No comments yet")
		return
	}
	for _, it := range items {
		own := ""
		if it.Own {
			own = " (you)"
		}
		fmt.Fprintf(w, "#%d %s%s, %s\n  %s\n", it.ID, it.Author, own, it.Date, it.Description)
	}
}

func printProfile(w io.Writer, user *types.User, stats types.Statistics, themes []types.ThemeStat) {
	if user != nil {
		fmt.Fprintf(w, "%s (%s)\n", user.Name, user.Login)
	}
	fmt.Fprintf(w, "Solved: %d (easy %d, medium %d, hard %d)\n", stats.TotalSolved, stats.EasySolved, stats.MediumSolved, stats.HardSolved)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, st := range themes {
		fmt.Fprintf(tw, "  %s\t%d\n", st.Title, st.SolvedCount)
	}
	_ = tw.Flush()
}
