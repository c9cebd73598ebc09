package mockgithub

import (
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) dashboard(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, renderDashboard(s.store.allPRs()))
}

// renderDashboard lists every pull request the relay has opened, grouped by
// repository, newest first.
func renderDashboard(byRepo map[string][]PullRequest) string {
	repos := make([]string, 0, len(byRepo))
	for k := range byRepo {
		repos = append(repos, k)
	}
	sort.Strings(repos)

	var rows strings.Builder
	total := 0
	for _, repo := range repos {
		prs := byRepo[repo]
		for i := len(prs) - 1; i >= 0; i-- {
			pr := prs[i]
			total++
			fmt.Fprintf(&rows, `
        <tr>
          <td style="padding:12px 16px;border-bottom:1px solid #21262d;font-family:monospace;font-size:13px;color:#8b949e;">%s#%d</td>
          <td style="padding:12px 16px;border-bottom:1px solid #21262d;color:#c9d1d9;font-weight:600;">%s</td>
          <td style="padding:12px 16px;border-bottom:1px solid #21262d;font-family:monospace;font-size:13px;color:#79c0ff;">%s &rarr; %s</td>
        </tr>`,
				html.EscapeString(repo), pr.Number,
				html.EscapeString(pr.Title),
				html.EscapeString(pr.Head.Ref), html.EscapeString(pr.Base.Ref))
		}
	}

	body := rows.String()
	if total == 0 {
		body = `<tr><td colspan="3" style="padding:40px 16px;text-align:center;color:#8b949e;">No pull requests yet.</td></tr>`
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>Mock GitHub</title>
  <meta http-equiv="refresh" content="3">
  <style>
    * { margin:0; padding:0; box-sizing:border-box; }
    body { background:#0d1117; color:#c9d1d9; font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif; }
  </style>
</head>
<body>
  <div style="max-width:860px;margin:0 auto;padding:32px 16px;">
    <div style="display:flex;align-items:center;justify-content:space-between;margin-bottom:24px;">
      <h1 style="font-size:20px;font-weight:600;">Pull Requests</h1>
      <span style="font-size:13px;color:#8b949e;">%d total</span>
    </div>
    <table style="width:100%%;border-collapse:collapse;background:#161b22;border:1px solid #30363d;border-radius:6px;overflow:hidden;">
      <tbody>%s</tbody>
    </table>
  </div>
</body>
</html>`, total, body)
}
