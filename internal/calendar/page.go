package calendar

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"starrail_calendar/internal/model"
)

var regionNames = map[string]string{
	"cn":   "CN Server",
	"os":   "Global Server",
	"asia": "Asia Server",
	"eu":   "Europe Server",
	"us":   "America Server",
}

// RegionName returns a display name for a region code.
func RegionName(region string) string {
	if name, ok := regionNames[region]; ok {
		return name
	}
	return strings.ToUpper(region)
}

type pageRow struct {
	Title   string
	Summary string
	Date    string
}

type pageData struct {
	Title  string
	Region string
	Date   string
	Rows   []pageRow
}

var pageTmpl = template.Must(template.New("calendar").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; padding: 24px; background: #14161f; color: #e8e6df; font-family: "Noto Sans CJK SC", "Noto Sans", sans-serif; }
h1 { margin: 0 0 4px; font-size: 28px; color: #f0c674; }
.meta { margin-bottom: 16px; color: #9aa0b4; font-size: 16px; }
.row { display: flex; gap: 16px; padding: 10px 12px; margin-bottom: 8px; border-left: 4px solid #f0c674; background: #1f2230; border-radius: 4px; }
.date { flex: 0 0 56px; color: #9aa0b4; }
.title { font-weight: 600; }
.summary { font-size: 14px; color: #b8bccb; }
.empty { color: #9aa0b4; font-style: italic; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{.Region}} · {{.Date}}</div>
{{- range .Rows}}
<div class="row"><div class="date">{{.Date}}</div><div><div class="title">{{.Title}}</div><div class="summary">{{.Summary}}</div></div></div>
{{- else}}
<div class="empty">No ongoing events.</div>
{{- end}}
</body>
</html>
`))

// BuildPage renders the calendar HTML for region on day.
func BuildPage(region string, day time.Time, events []model.Event) (string, error) {
	data := pageData{
		Title:  "Honkai: Star Rail Event Calendar",
		Region: RegionName(region),
		Date:   day.Format("2006-01-02 Mon"),
	}
	for _, ev := range events {
		row := pageRow{Title: ev.Title, Summary: ev.Summary, Date: "--"}
		if !ev.Published.IsZero() {
			row.Date = ev.Published.In(day.Location()).Format("01-02")
		}
		data.Rows = append(data.Rows, row)
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
