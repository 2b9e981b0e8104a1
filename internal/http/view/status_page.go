package view

import (
	"bytes"
	"html/template"
)

// StatusPageData describes a terminal page: link not found, gone, or a
// generic failure.
type StatusPageData struct {
	Heading string
	Message string
}

var statusPageTmpl = template.Must(template.New("status_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<meta name="robots" content="noindex" />
	<title>{{.Heading}}</title>
	<style>
		body { margin: 0; min-height: 100vh; display: flex; align-items: center; justify-content: center; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; background: #030712; color: #e7ecff; }
		.card { text-align: center; padding: 32px; }
		p { color: #a1acc5; }
	</style>
</head>
<body>
	<div class="card">
		<h1>{{.Heading}}</h1>
		<p>{{.Message}}</p>
	</div>
</body>
</html>
`))

func RenderStatusPage(data StatusPageData) (string, error) {
	var buf bytes.Buffer
	if err := statusPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
