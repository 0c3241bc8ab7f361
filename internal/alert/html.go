package alert

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// metric is one row of the metrics table in the HTML notification body.
type metric struct {
	Name  string
	Value string
}

// htmlBody renders the HTML form of an alert notification: a header, the
// alert message, a metrics table, and the top frequent errors extracted
// from the details block.
func htmlBody(title, message string, metrics []metric, details string, generatedAt time.Time) string {
	var rows strings.Builder
	for _, m := range metrics {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td></tr>",
			html.EscapeString(m.Name), html.EscapeString(m.Value))
	}

	errorList := "<p>No specific error patterns detected.</p>"
	if items := detailItems(details); len(items) > 0 {
		var list strings.Builder
		list.WriteString("<ul>")
		for _, item := range items {
			list.WriteString("<li>" + html.EscapeString(item) + "</li>")
		}
		list.WriteString("</ul>")
		errorList = list.String()
	}

	return fmt.Sprintf(`<html>
<head>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; color: #333; }
.container { max-width: 600px; margin: 0 auto; border: 1px solid #ddd; border-radius: 8px; overflow: hidden; }
.header { background-color: #DC2626; color: white; padding: 20px; text-align: center; }
.content { padding: 20px; background-color: #F9FAFB; }
.metrics-table { width: 100%%; margin-bottom: 20px; border-collapse: collapse; }
.metrics-table th, .metrics-table td { padding: 10px; border-bottom: 1px solid #eee; text-align: left; }
.metrics-table th { background-color: #f3f3f3; color: #666; font-size: 0.85em; text-transform: uppercase; }
.footer { background-color: #f1f1f1; padding: 15px; text-align: center; font-size: 0.8em; color: #666; }
h2 { margin-top: 0; }
</style>
</head>
<body>
<div class="container">
<div class="header"><h1>%s</h1></div>
<div class="content">
<h2>%s</h2>
<table class="metrics-table">
<tr><th>Metric</th><th>Value</th></tr>
%s
</table>
<h3>Top Frequent Errors</h3>
%s
</div>
<div class="footer">
<p>This is an automated alert from the log analysis service.</p>
<p>Generated at %s</p>
</div>
</div>
</body>
</html>`,
		html.EscapeString(title),
		html.EscapeString(message),
		rows.String(),
		errorList,
		generatedAt.Format("2006-01-02 15:04:05"))
}

// detailItems extracts "- item" lines from a details block.
func detailItems(details string) []string {
	var items []string
	for _, line := range strings.Split(details, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			items = append(items, strings.TrimPrefix(line, "- "))
		}
	}
	return items
}
