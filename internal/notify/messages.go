package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"telegram-bridge/internal/models"
)

// message is the data every notification template renders from.
type message struct {
	Username   string
	Actor      string
	Owner      string
	Repo       string
	Number     int
	Title      string
	URL        string
	ClaimURL   string
	CommentURL string
	Excerpt    string
}

var templates = map[models.Trigger]*template.Template{
	models.TriggerPayment: template.Must(template.New("payment").Parse(
		`<b>Payment available</b>` + "\n" +
			`You have a reward waiting for <a href="{{.URL}}">{{.Owner}}/{{.Repo}}#{{.Number}}</a> {{.Title}}.` + "\n" +
			`<a href="{{.ClaimURL}}">Claim it here</a>.`)),

	models.TriggerReminder: template.Must(template.New("reminder").Parse(
		`<b>Task reminder</b>` + "\n" +
			`<a href="{{.URL}}">{{.Owner}}/{{.Repo}}#{{.Number}}</a> {{.Title}} has been idle for a while. Please post an update.`)),

	models.TriggerDisqualification: template.Must(template.New("disqualification").Parse(
		`<b>Unassigned</b>` + "\n" +
			`You were removed from <a href="{{.URL}}">{{.Owner}}/{{.Repo}}#{{.Number}}</a> {{.Title}}{{if .Actor}} by {{.Actor}}{{end}}.`)),

	models.TriggerReview: template.Must(template.New("review").Parse(
		`<b>Review requested</b>` + "\n" +
			`{{if .Actor}}{{.Actor}} asked you to review{{else}}Your review was requested on{{end}} <a href="{{.URL}}">{{.Owner}}/{{.Repo}}#{{.Number}}</a> {{.Title}}.`)),

	models.TriggerRFC: template.Must(template.New("rfc").Parse(
		`<b>Request for comment</b>` + "\n" +
			`{{if .Actor}}{{.Actor}} is{{else}}Someone is{{end}} waiting on your input in <a href="{{.CommentURL}}">{{.Owner}}/{{.Repo}}#{{.Number}}</a>.` +
			`{{if .Excerpt}}` + "\n" + `<i>{{.Excerpt}}</i>{{end}}`)),
}

var followUpTmpl = template.Must(template.New("followup").Parse(
	`<b>Reminder: request for comment</b>` + "\n" +
		`You have not answered <a href="{{.CommentURL}}">this comment</a> in {{.Owner}}/{{.Repo}}#{{.Number}} yet.` +
		`{{if .Excerpt}}` + "\n" + `<i>{{.Excerpt}}</i>{{end}}`))

func render(t models.Trigger, m message) (string, error) {
	tmpl, ok := templates[t]
	if !ok {
		return "", fmt.Errorf("no template for trigger %q", t)
	}
	return execute(tmpl, m)
}

func execute(tmpl *template.Template, m message) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, m); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
