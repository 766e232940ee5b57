package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"caseport/internal/run"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func renderReport(out io.Writer, report *run.Report, colorize bool) {
	if report == nil || len(report.Cases) == 0 {
		fmt.Fprintln(out, "Nothing to download")
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Case", "Title", "Status", "Detail"})
	for _, res := range report.Cases {
		tw.AppendRow(table.Row{res.CaseID, res.Title, caseStatusLabel(res), caseDetail(res)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	fmt.Fprintln(out, tw.Render())

	for _, res := range report.Cases {
		if len(res.MissingAssets) == 0 {
			continue
		}
		fmt.Fprintf(out, "Case %d is missing %d asset(s):\n", res.CaseID, len(res.MissingAssets))
		for _, url := range res.MissingAssets {
			fmt.Fprintf(out, "  %s\n", url)
		}
	}

	summary := summaryLine(report)
	if colorize {
		summary = statusColor(report.Status()) + summary + ansiReset
	}
	fmt.Fprintln(out, summary)
}

func caseStatusLabel(res *run.CaseResult) string {
	switch res.Status() {
	case run.CaseSucceeded:
		return "OK"
	case run.CaseSucceededWithWarnings:
		return "INCOMPLETE"
	default:
		return "FAILED"
	}
}

func caseDetail(res *run.CaseResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	detail := res.Output
	if n := len(res.MissingAssets); n > 0 {
		detail += fmt.Sprintf(" (%d missing)", n)
	}
	return strings.TrimSpace(detail)
}

func summaryLine(report *run.Report) string {
	succeeded, warned, failed := report.Counts()
	elapsed := report.Finished.Sub(report.Started).Round(10 * time.Millisecond)
	return fmt.Sprintf("%d succeeded, %d incomplete, %d failed in %s",
		succeeded, warned, failed, elapsed)
}

func statusColor(status run.Status) string {
	switch status {
	case run.StatusSucceeded:
		return ansiGreen
	case run.StatusSucceededWithWarnings:
		return ansiYellow
	default:
		return ansiRed
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
