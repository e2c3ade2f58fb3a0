package main

import (
	"fmt"
	"strings"
	"time"
)

// FormatSummary renders a RunSummary the way the upload commands report it
func FormatSummary(s RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s upload finished in %s\n", s.Family, s.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "processed %d, uploaded %d, duplicate %d, failed %d", s.Processed, s.Uploaded, s.Duplicate, s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, ", skipped %d", s.Skipped)
	}
	b.WriteString("\n")
	if len(s.CanonicalTitles) > 0 {
		b.WriteString("files:\n")
		for _, t := range s.CanonicalTitles {
			fmt.Fprintf(&b, "  %s\n", fileTitle(t))
		}
	}
	if len(s.RedirectTitles) > 0 {
		b.WriteString("redirects:\n")
		for _, t := range s.RedirectTitles {
			fmt.Fprintf(&b, "  %s\n", fileTitle(t))
		}
	}
	for _, o := range s.Outcomes {
		switch {
		case o.Status == OutcomeFailed:
			fmt.Fprintf(&b, "failed %s: %s\n", o.Job.CanonicalTitle, o.Reason)
		case o.Status != OutcomeSkipped && len(o.Redirects) < len(o.Job.RedirectTitles):
			fmt.Fprintf(&b, "incomplete %s: %s\n", o.Job.CanonicalTitle, o.Reason)
		}
	}
	return b.String()
}

// FormatRotation renders the day table and the pages a rotation wrote
func FormatRotation(r RotationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s rotation\n", r.Plan.Mode)
	for _, row := range r.Table {
		fmt.Fprintf(&b, "day %d  %s", row.Day, row.Start.Format("2006-01-02 15:04 MST"))
		if row.Element != "" {
			fmt.Fprintf(&b, "  %-5s", row.Element)
		}
		fmt.Fprintf(&b, "  %s", row.Left)
		if row.Right != "" {
			fmt.Fprintf(&b, "  %s", row.Right)
		}
		b.WriteString("\n")
	}
	if len(r.PagesUpdated) > 0 {
		b.WriteString("updated:\n")
		for _, p := range r.PagesUpdated {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}
	return b.String()
}
