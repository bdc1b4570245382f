package notify

import (
	"bytes"
	"html/template"
)

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .meta { background: #f5f5f5; padding: 12px; border-radius: 4px; margin: 16px 0; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .overdue { background: #fdecea; padding: 12px; border-radius: 4px; margin: 20px 0; }
        table { border-collapse: collapse; width: 100%; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #eee; }`

type requestEmailData struct {
	AppName       string
	RequestNumber string
	OrderNumber   string
	Drawing       string
	ControlType   string
	Executor      string
	Deadline      string
	StatusName    string
	OldStatus     string
	NewStatus     string
	DaysOverdue   int
	RequestURL    string
}

const createdEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New testing request {{.RequestNumber}}</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>New testing request {{.RequestNumber}}</h2>

    <div class="meta">
        <p><strong>Order:</strong> {{.OrderNumber}}</p>
        <p><strong>Drawing:</strong> {{.Drawing}}</p>
        <p><strong>Control type:</strong> {{.ControlType}}</p>
        <p><strong>Executor:</strong> {{.Executor}}</p>
        {{if .Deadline}}<p><strong>Deadline:</strong> {{.Deadline}}</p>{{end}}
    </div>

    <p>
        <a href="{{.RequestURL}}" class="button">Open request</a>
    </p>

    <div class="footer">
        <p>You receive this message because you are assigned to testing requests in {{.AppName}}.</p>
    </div>
</body>
</html>`

const statusChangeEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Request {{.RequestNumber}} status changed</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Request {{.RequestNumber}}</h2>

    <p>Status changed: <strong>{{.OldStatus}}</strong> &rarr; <strong>{{.NewStatus}}</strong></p>

    <div class="meta">
        <p><strong>Order:</strong> {{.OrderNumber}}</p>
        <p><strong>Drawing:</strong> {{.Drawing}}</p>
    </div>

    <p>
        <a href="{{.RequestURL}}" class="button">Open request</a>
    </p>
</body>
</html>`

const deadlineEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Deadline approaching for {{.RequestNumber}}</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Deadline approaching</h2>

    <div class="warning">
        <p>Request <strong>{{.RequestNumber}}</strong> is due on <strong>{{.Deadline}}</strong>.</p>
    </div>

    <div class="meta">
        <p><strong>Order:</strong> {{.OrderNumber}}</p>
        <p><strong>Drawing:</strong> {{.Drawing}}</p>
        <p><strong>Status:</strong> {{.StatusName}}</p>
        <p><strong>Executor:</strong> {{.Executor}}</p>
    </div>

    <p>
        <a href="{{.RequestURL}}" class="button">Open request</a>
    </p>
</body>
</html>`

const overdueEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Request {{.RequestNumber}} is overdue</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Request overdue</h2>

    <div class="overdue">
        <p>Request <strong>{{.RequestNumber}}</strong> is <strong>{{.DaysOverdue}}</strong> day(s) past its deadline of {{.Deadline}}.</p>
    </div>

    <div class="meta">
        <p><strong>Order:</strong> {{.OrderNumber}}</p>
        <p><strong>Drawing:</strong> {{.Drawing}}</p>
        <p><strong>Status:</strong> {{.StatusName}}</p>
        <p><strong>Executor:</strong> {{.Executor}}</p>
    </div>

    <p>
        <a href="{{.RequestURL}}" class="button">Open request</a>
    </p>
</body>
</html>`

type summaryRow struct {
	RequestNumber string
	OrderNumber   string
	Deadline      string
	Executor      string
	DaysOverdue   int
}

type summaryEmailData struct {
	AppName            string
	Date               string
	Active             int
	NewYesterday       int
	CompletedYesterday int
	Overdue            int
	DueToday           int
	OverdueRows        []summaryRow
	DueTodayRows       []summaryRow
	AppURL             string
}

const summaryEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}} daily summary {{.Date}}</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Daily summary for {{.Date}}</h2>

    <div class="meta">
        <p><strong>Active requests:</strong> {{.Active}}</p>
        <p><strong>New yesterday:</strong> {{.NewYesterday}}</p>
        <p><strong>Completed yesterday:</strong> {{.CompletedYesterday}}</p>
        <p><strong>Overdue:</strong> {{.Overdue}}</p>
        <p><strong>Due today:</strong> {{.DueToday}}</p>
    </div>

    {{if .OverdueRows}}
    <h3>Overdue</h3>
    <table>
        <tr><th>Request</th><th>Order</th><th>Deadline</th><th>Executor</th><th>Days</th></tr>
        {{range .OverdueRows}}
        <tr><td>{{.RequestNumber}}</td><td>{{.OrderNumber}}</td><td>{{.Deadline}}</td><td>{{.Executor}}</td><td>{{.DaysOverdue}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{if .DueTodayRows}}
    <h3>Due today</h3>
    <table>
        <tr><th>Request</th><th>Order</th><th>Deadline</th><th>Executor</th></tr>
        {{range .DueTodayRows}}
        <tr><td>{{.RequestNumber}}</td><td>{{.OrderNumber}}</td><td>{{.Deadline}}</td><td>{{.Executor}}</td></tr>
        {{end}}
    </table>
    {{end}}

    <p>
        <a href="{{.AppURL}}" class="button">Open dashboard</a>
    </p>
</body>
</html>`

type broadcastEmailData struct {
	AppName string
	Subject string
	Message string
	AppURL  string
}

const broadcastEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.Subject}}</h2>

    <p>{{.Message}}</p>

    <div class="footer">
        <p>Sent via {{.AppName}} broadcast.</p>
    </div>
</body>
</html>`
