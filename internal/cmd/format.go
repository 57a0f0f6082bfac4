package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
)

func checkMark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// truncate shortens s to n runes for one-line listings.
func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func renderClassification(w io.Writer, c classification) {
	res, opp := c.Result, c.Opportunity
	fmt.Fprintf(w, "Text:       %s\n", c.Text)
	fmt.Fprintf(w, "Intent:     %s (%s, confidence %.2f)\n", res.Primary, res.Strength, res.Confidence)
	if len(res.Supporting) > 0 {
		parts := make([]string, len(res.Supporting))
		for i, in := range res.Supporting {
			parts[i] = string(in)
		}
		fmt.Fprintf(w, "Supporting: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(w, "Lexicon:    %s\n", res.LexiconVersion)
	if len(res.Signals) > 0 {
		fmt.Fprintln(w, "Signals:")
		for _, s := range res.Signals {
			strong := ""
			if s.Strong {
				strong = " (strong)"
			}
			fmt.Fprintf(w, "  - %s %q%s\n", s.Category, s.Phrase, strong)
		}
	}
	fmt.Fprintf(w, "Opportunity: %s / %s, score %d -> %s\n", opp.Level, opp.Stage, opp.UrgencyScore, opp.RecommendedAction)
	fmt.Fprintf(w, "  %s\n", opp.Explanation)
}

func renderActions(w io.Writer, actions []*control.Action) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "No actions found.")
		return
	}
	fmt.Fprintf(w, "Actions (showing %d):\n\n", len(actions))
	for _, a := range actions {
		p := a.Plan
		fmt.Fprintf(w, "  %s | %s | p%d | %s/%s | %s via %s | @%s\n",
			p.ID,
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			p.Priority,
			p.Level,
			p.Stage,
			p.ActionType,
			p.Channel,
			p.ActorID,
		)
		if p.DraftMessage != "" {
			fmt.Fprintf(w, "      %q\n", truncate(p.DraftMessage, 100))
		}
	}
}

// renderAudit writes entries and, when verify is set, a signature mark per
// entry. It returns the number of entries that failed verification.
func renderAudit(w io.Writer, entries []control.AuditEntry, verify func(control.AuditEntry) bool) int {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit entries found.")
		return 0
	}
	bad := 0
	fmt.Fprintf(w, "Audit Entries (showing %d):\n\n", len(entries))
	for _, e := range entries {
		mark := " "
		if verify != nil {
			ok := verify(e)
			if !ok {
				bad++
			}
			mark = checkMark(ok)
		}
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		details := make([]string, 0, len(keys))
		for _, k := range keys {
			details = append(details, k+"="+e.Details[k])
		}
		fmt.Fprintf(w, "  %s %s | %s | %s | %-8s | %s\n",
			mark,
			e.ID,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.PlanID,
			e.EventType,
			strings.Join(details, " "),
		)
	}
	if verify != nil {
		if bad == 0 {
			fmt.Fprintln(w, "\nAll signatures VALID (HMAC-SHA256 intact)")
		} else {
			fmt.Fprintf(w, "\n%d signature(s) INVALID (possible tampering)\n", bad)
		}
	}
	return bad
}

func renderUnknowns(w io.Writer, list []events.UnknownIntent) {
	if len(list) == 0 {
		fmt.Fprintln(w, "Nothing to review.")
		return
	}
	fmt.Fprintf(w, "Unclassified comments (showing %d):\n\n", len(list))
	for _, u := range list {
		fmt.Fprintf(w, "  %s | %s/%s | %.2f | %q\n",
			u.CreatedAt.Format("2006-01-02 15:04:05"),
			u.Primary,
			u.Strength,
			u.Confidence,
			truncate(u.Text, 80),
		)
	}
}
