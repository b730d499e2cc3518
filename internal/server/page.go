package server

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/pipeline"
	"github.com/ppiankov/autoclaim/internal/render"
)

type pageData struct {
	Result   *pipeline.Result
	Decision template.HTML
	Error    string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Auto Claim Decision</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
.banner { padding: .75rem 1rem; border-radius: 4px; margin: 1rem 0; }
.approved { background: #e6f4ea; color: #137333; }
.denied, .error { background: #fce8e6; color: #a50e0e; }
.warning { color: #8a6d00; }
footer { color: #777; font-size: .85rem; }
</style>
</head>
<body>
<h1>📄 Auto Insurance Claim Decision</h1>
<form method="post" action="/" enctype="multipart/form-data">
  <label for="claim_file">Upload Claim JSON File</label>
  <input type="file" id="claim_file" name="claim_file" accept=".json,application/json" required>
  <button type="submit">Decide</button>
</form>
{{- if .Error }}
<hr>
<div class="banner error">{{ .Error }}</div>
{{- end }}
{{- with .Result }}
<hr>
{{- if .Decision.Covered }}
<div class="banner approved">✅ Claim Approved</div>
{{- else }}
<div class="banner denied">❌ Claim Denied</div>
{{- end }}
{{ $.Decision }}
{{- range .Warnings }}
<p class="warning">⚠️ {{ . }}</p>
{{- end }}
<footer>Run {{ .RunID }}</footer>
{{- end }}
</body>
</html>
`))

// decisionHTML renders the decision fields through the same Markdown used for
// file output. The verdict heading is dropped since the page shows a banner.
func (s *Server) decisionHTML(d model.ClaimDecision) (template.HTML, error) {
	md := render.DecisionMarkdown(d)
	if i := strings.IndexByte(md, '\n'); i >= 0 {
		md = md[i+1:]
	}

	var buf bytes.Buffer
	if err := s.md.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	// goldmark drops raw HTML by default
	return template.HTML(buf.String()), nil
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.logger.WithError(err).Error("render page")
		http.Error(w, "render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
