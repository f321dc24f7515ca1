// Package ui renders the job dashboard served at the server root. The pages
// are small enough that the components are built directly on the templ
// runtime rather than generated sources.
package ui

import (
	"context"
	"fmt"
	"html"
	"io"
	"time"

	"github.com/a-h/templ"
)

// JobListItem is the view model for one row of the dashboard.
type JobListItem struct {
	ID          string
	State       string
	Function    string
	Dim         int
	Iterations  int
	BestCost    float64
	InitialCost float64
	StartTime   time.Time
	EndTime     *time.Time
	Error       string
}

// JobList renders the dashboard page listing all jobs.
func JobList(items []JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHeader); err != nil {
			return err
		}

		if len(items) == 0 {
			if _, err := io.WriteString(w, `<p class="empty">No jobs yet. POST to /api/v1/jobs to start one.</p>`); err != nil {
				return err
			}
		} else {
			if _, err := io.WriteString(w, `<table><tr><th>ID</th><th>State</th><th>Function</th><th>Dim</th><th>Iterations</th><th>Initial cost</th><th>Best cost</th><th>Elapsed</th></tr>`); err != nil {
				return err
			}
			for _, item := range items {
				if err := jobRow(item).Render(ctx, w); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, `</table>`); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, pageFooter)
		return err
	})
}

func jobRow(item JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		elapsed := time.Since(item.StartTime)
		if item.EndTime != nil {
			elapsed = item.EndTime.Sub(item.StartTime)
		}

		state := html.EscapeString(item.State)
		if item.Error != "" {
			state = fmt.Sprintf("%s (%s)", state, html.EscapeString(item.Error))
		}

		_, err := fmt.Fprintf(w,
			`<tr class="state-%s"><td><a href="/api/v1/jobs/%s/status">%s</a></td><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%.6g</td><td>%.6g</td><td>%s</td></tr>`,
			html.EscapeString(item.State),
			html.EscapeString(item.ID),
			html.EscapeString(shortID(item.ID)),
			state,
			html.EscapeString(item.Function),
			item.Dim,
			item.Iterations,
			item.InitialCost,
			item.BestCost,
			elapsed.Round(time.Millisecond),
		)
		return err
	})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

const pageHeader = `<!DOCTYPE html>
<html>
<head>
<title>evostrat jobs</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: left; }
tr.state-running td { background: #fffbe6; }
tr.state-completed td { background: #f0fff0; }
tr.state-failed td, tr.state-cancelled td { background: #fff0f0; }
.empty { color: #666; }
</style>
</head>
<body>
<h1>Optimization jobs</h1>
`

const pageFooter = `
</body>
</html>
`
