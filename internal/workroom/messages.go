package workroom

import (
	"bytes"
	"fmt"
	"html/template"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var inviteTmpl = template.Must(template.New("invite").Parse(
	`<p>A workroom has been opened for this task: <a href="{{.Link}}">{{.Name}}</a></p>` +
		`<p><i>Join to coordinate with reviewers and collaborators.</i></p>`))

// ChatName is the display name of the workroom for issue.
func ChatName(issue Issue) string {
	return fmt.Sprintf("%s #%d", issue.Repo, issue.Number)
}

// inviteComment renders the issue comment carrying the invite link as
// Markdown.
func inviteComment(name, link string) (string, error) {
	var buf bytes.Buffer
	err := inviteTmpl.Execute(&buf, struct{ Name, Link string }{name, link})
	if err != nil {
		return "", err
	}
	return htmltomarkdown.ConvertString(buf.String())
}

func closedNotice(issue Issue) string {
	return fmt.Sprintf("This task has been closed and the workroom archived. Members will now be removed.\n%s", issue.HTMLURL)
}

func reopenedNotice(issue Issue) string {
	return fmt.Sprintf("This task has been reopened. Previous members are being invited back.\n%s", issue.HTMLURL)
}
