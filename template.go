package main

import (
	"bytes"
	"html/template"
	"net/http"
)

// ---- template helpers ----

var funcMap = template.FuncMap{
	// convert interface{} (int64/float/int) to float64
	"f64": func(n any) float64 {
		switch v := n.(type) {
		case int64:
			return float64(v)
		case int:
			return float64(v)
		case float64:
			return v
		default:
			return 0
		}
	},
	"div": func(a, b float64) float64 { return a / b },
	"add": func(a, b int) int { return a + b },
}

// pageData wraps every page with its pending flash messages.
type pageData struct {
	Title   string
	Flashes []flash
	Data    any
}

var views = template.Must(template.New("views").Funcs(funcMap).Parse(`
{{define "head"}}<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}} · PDF Desk</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    :root { --bg:#fff; --fg:#111; --muted:#666; --border:#eee; }
    * { box-sizing: border-box; }
    body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; margin: 24px; color: var(--fg); background: var(--bg); }
    h1 { margin-top: 0; font-size: 22px; }
    nav a { margin-right: 14px; }
    table { width: 100%; border-collapse: collapse; }
    th, td { padding: 8px 10px; border-bottom: 1px solid var(--border); text-align: left; }
    tr:hover { background: #fafafa; }
    .muted { color: var(--muted); font-size: 13px; }
    .box { border: 1px solid var(--border); border-radius: 10px; padding: 16px; margin-bottom: 16px; }
    .btn { padding: 10px 14px; border: 0; border-radius: 8px; background: #111; color: #fff; cursor: pointer; text-decoration: none; }
    input[type="text"], input[type="url"], select { padding: 10px; border: 1px solid #ddd; border-radius: 8px; min-width: 280px; }
    .flash { padding: 10px 12px; border-radius: 8px; margin-bottom: 10px; }
    .flash.error, .flash.danger { background: #fde8e8; color: #900; }
    .flash.warning { background: #fff6db; color: #7a5b00; }
    .flash.success { background: #e6f6ea; color: #14572a; }
    iframe { width: 100%; height: 520px; border: 1px solid var(--border); border-radius: 8px; }
  </style>
</head>
<body>
  <nav><a href="/">Home</a><a href="/read">Read</a><a href="/merge">Merge</a><a href="/split">Split</a></nav>
  <h1>{{.Title}}</h1>
  {{range .Flashes}}<div class="flash {{.Category}}">{{.Message}}</div>{{end}}
{{end}}

{{define "foot"}}
</body>
</html>
{{end}}

{{define "index"}}{{template "head" .}}
  <div class="box">
    <p>Read page and word counts, merge several PDFs, or split one into page ranges.</p>
  </div>
  <h3>Recent outputs</h3>
  {{with .Data}}
  <table id="outputs">
    <thead><tr><th>File</th><th>Size</th><th>Created</th><th></th></tr></thead>
    <tbody>
    {{range .}}
      <tr class="fileRow" data-name="{{.Name}}">
        <td><a href="/view/{{.Name}}">{{.Name}}</a></td>
        <td class="muted">{{printf "%.2f" (div (f64 .Size) 1048576.0)}} MB</td>
        <td class="muted">{{.Mod.Format "2006-01-02 15:04"}}</td>
        <td><a href="/download/{{.Name}}">Download</a></td>
      </tr>
    {{end}}
    </tbody>
  </table>
  {{else}}<p class="muted">Nothing yet.</p>{{end}}
{{template "foot" .}}{{end}}

{{define "read"}}{{template "head" .}}
  <form class="box" method="post" action="/read" enctype="multipart/form-data">
    <p><label>PDF file: <input type="file" name="file" accept=".pdf,application/pdf"></label></p>
    <p><label>or URL: <input type="url" name="url" placeholder="https://example.com/file.pdf"></label></p>
    <button class="btn" type="submit">Read</button>
  </form>
{{template "foot" .}}{{end}}

{{define "merge"}}{{template "head" .}}
  <form class="box" method="post" action="/merge" enctype="multipart/form-data">
    <p><label>PDF files (at least 2, in order): <input type="file" name="files[]" accept=".pdf,application/pdf" multiple></label></p>
    <button class="btn" type="submit">Merge</button>
  </form>
{{template "foot" .}}{{end}}

{{define "split"}}{{template "head" .}}
  <form class="box" method="post" action="/split" enctype="multipart/form-data">
    <p><label>PDF file: <input type="file" name="pdf_file" accept=".pdf,application/pdf"></label></p>
    <p><label>Mode:
      <select name="mode">
        <option value="ranges">Page ranges</option>
        <option value="at">Split in two after page</option>
        <option value="pages">One file per page</option>
      </select></label></p>
    <p><label>Pages: <input type="text" name="page_ranges" placeholder="1-3, 4-6, 7"></label></p>
    <button class="btn" type="submit">Split</button>
  </form>
{{template "foot" .}}{{end}}

{{define "view"}}{{template "head" .}}
  {{with .Data}}
  <div class="box" id="info">
    <div><strong id="filename">{{.Filename}}</strong></div>
    <div>Pages: <span id="num-pages">{{.NumPages}}</span> · Words: <span id="num-words">{{.NumWords}}</span></div>
    {{if .MergedFiles}}
    <div class="muted">Merged from:</div>
    <ol id="merged-files">{{range .MergedFiles}}<li>{{.}}</li>{{end}}</ol>
    {{end}}
    {{if .Download}}<p><a class="btn" id="download" href="{{.Download}}">Download</a></p>{{end}}
  </div>
  {{if .PDFURL}}<iframe title="Preview" src="{{.PDFURL}}#page=1&zoom=page-width"></iframe>{{end}}
  {{end}}
{{template "foot" .}}{{end}}

{{define "split_result"}}{{template "head" .}}
  {{with .Data}}
  <p class="muted">{{.Original}} · {{.Pages}} pages</p>
  {{range .Warnings}}<div class="flash warning">{{.}}</div>{{end}}
  <table id="parts">
    <thead><tr><th>#</th><th>File</th><th>Pages</th><th></th></tr></thead>
    <tbody>
    {{range $i, $f := .Files}}
      <tr class="part">
        <td>{{add $i 1}}</td>
        <td><a href="/view/{{$f.Filename}}">{{$f.Filename}}</a> <span class="muted">{{$f.Label}}</span></td>
        <td class="count">{{$f.Pages}}</td>
        <td><a href="{{$f.Download}}">Download</a></td>
      </tr>
    {{end}}
    </tbody>
  </table>
  {{end}}
{{template "foot" .}}{{end}}
`))

// render executes a page into a buffer first so a template error never
// leaves half a page on the wire.
func render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	var buf bytes.Buffer
	pd := pageData{Title: title, Flashes: popFlashes(w, r), Data: data}
	if err := views.ExecuteTemplate(&buf, name, pd); err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
