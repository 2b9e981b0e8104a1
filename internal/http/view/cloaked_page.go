package view

import (
	"bytes"
	"html/template"
	"strings"
)

// CloakContent is the deployment's generic page for automated visitors.
type CloakContent struct {
	SiteName string
	Title    string
	Body     string
}

// CloakTopic is the per-link topic used under adaptive content.
type CloakTopic struct {
	Title       string
	Description string
}

type cloakedPageData struct {
	SiteName   string
	Title      string
	Paragraphs []string
}

// No script, no links, no forms: the cloaked page must not lead anywhere.
var cloakedPageTmpl = template.Must(template.New("cloaked_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{.Title}}</title>
	<meta property="og:title" content="{{.Title}}" />
	<meta property="og:site_name" content="{{.SiteName}}" />
	<style>
		body { margin: 0 auto; max-width: 640px; padding: 48px 20px; font-family: Georgia, serif; line-height: 1.6; color: #1f2933; }
		header { font-size: 0.85rem; text-transform: uppercase; letter-spacing: 0.08em; color: #7b8794; }
		h1 { font-size: 2rem; margin: 12px 0 24px; }
	</style>
</head>
<body>
	<header>{{.SiteName}}</header>
	<article>
		<h1>{{.Title}}</h1>
		{{range .Paragraphs}}<p>{{.}}</p>
		{{end}}
	</article>
</body>
</html>
`))

// RenderCloakedPage renders the content served to automated visitors of an
// Ultra-Link. With a topic the page is about the link's own title and
// description; otherwise it is the generic content. It needs no session.
func RenderCloakedPage(content CloakContent, topic *CloakTopic) (string, error) {
	data := cloakedPageData{
		SiteName: content.SiteName,
		Title:    content.Title,
	}
	body := content.Body

	if topic != nil && strings.TrimSpace(topic.Title) != "" {
		data.Title = topic.Title
		if strings.TrimSpace(topic.Description) != "" {
			body = topic.Description
		}
	}
	if data.Title == "" {
		data.Title = "Notes"
	}
	data.Paragraphs = splitParagraphs(body)

	var buf bytes.Buffer
	if err := cloakedPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
