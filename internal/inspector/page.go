package inspector

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/copyleftdev/fmchain/internal/sampler"
)

// maxPageRows caps the sample table on the page; the JSON API has them all.
const maxPageRows = 200

var funcs = template.FuncMap{
	"spin": func(v int8) template.HTML {
		if v > 0 {
			return "+1"
		}
		return "-1"
	},
	"energy": func(e float64) string {
		return strconv.FormatFloat(e, 'f', 3, 64)
	},
	"pct": func(f float64) string {
		return strconv.FormatFloat(100*f, 'f', 1, 64) + "%"
	},
}

var (
	layout = `{{define "head"}}<!doctype html>
<html><head><meta charset="utf-8"><title>{{.}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; }
td, th { padding: 2px 6px; text-align: right; }
td.up { background: #d94f4f; color: #fff; }
td.down { background: #4f7ad9; color: #fff; }
.bar { background: #888; height: 12px; }
.muted { color: #777; }
</style></head><body>{{end}}`

	indexTemplate = template.Must(template.New("index").Funcs(funcs).Parse(layout + `{{template "head" "Sample sets"}}
<h1>Sample sets</h1>
{{if not .}}<p class="muted">Nothing registered yet.</p>{{else}}
<table>
<tr><th>label</th><th>reads</th><th>distinct</th><th>lowest energy</th><th>at lowest</th><th>created</th></tr>
{{range .}}<tr><td><a href="/inspect/{{.ID}}">{{.Label}}</a></td><td>{{.Stats.NumReads}}</td><td>{{.Stats.Distinct}}</td><td>{{energy .Stats.LowestEnergy}}</td><td>{{pct .Stats.LowestShare}}</td><td>{{.Created.Format "15:04:05"}}</td></tr>
{{end}}</table>{{end}}
</body></html>`))

	pageTemplate = template.Must(template.New("page").Funcs(funcs).Parse(layout + `{{template "head" .Label}}
<p><a href="/">all sample sets</a></p>
<h1>{{.Label}}</h1>
<p class="muted">{{.Summary}}{{with .Solver}} &middot; {{.}}{{end}}</p>
<p>{{.Stats.NumReads}} reads, {{.Stats.Distinct}} distinct, lowest energy {{energy .Stats.LowestEnergy}} ({{pct .Stats.LowestShare}} of reads), mean {{energy .Stats.MeanEnergy}} &plusmn; {{energy .Stats.StdEnergy}}</p>
<h2>Energy histogram</h2>
<table>
{{range .Bins}}<tr><td>{{energy .Energy}}</td><td>{{.Count}}</td><td style="text-align:left"><div class="bar" style="width: {{.Width}}px"></div></td></tr>
{{end}}</table>
<h2>Samples</h2>
<table>
<tr><th></th>{{range .Variables}}<th>{{.}}</th>{{end}}<th>energy</th><th>num_oc.</th></tr>
{{range $i, $r := .Records}}<tr><th>{{$i}}</th>{{range $r.Sample}}<td class="{{if gt . 0}}up{{else}}down{{end}}">{{spin .}}</td>{{end}}<td>{{energy $r.Energy}}</td><td>{{$r.NumOccurrences}}</td></tr>
{{end}}</table>
{{if .Hidden}}<p class="muted">{{.Hidden}} more rows in <a href="/api/v1/samplesets/{{.ID}}">JSON</a></p>{{end}}
</body></html>`))
)

type bar struct {
	sampler.Bin
	Width int
}

type pageData struct {
	ID        string
	Label     string
	Summary   string
	Solver    string
	Stats     Stats
	Bins      []bar
	Variables []int
	Records   []sampler.Record
	Hidden    int
}

func newPageData(e *Entry) pageData {
	ss := e.SampleSet
	d := pageData{
		ID:        e.ID,
		Label:     e.Label,
		Summary:   ss.Summary(),
		Stats:     e.stats(),
		Variables: ss.Variables,
		Records:   ss.Records,
	}
	if solver, ok := ss.Info["solver"].(string); ok {
		d.Solver = solver
	}
	if len(d.Records) > maxPageRows {
		d.Hidden = len(d.Records) - maxPageRows
		d.Records = d.Records[:maxPageRows]
	}

	hist := ss.Histogram()
	peak := 0
	for _, b := range hist {
		peak = max(peak, b.Count)
	}
	for _, b := range hist {
		w := 0
		if peak > 0 {
			w = 400 * b.Count / peak
		}
		d.Bins = append(d.Bins, bar{Bin: b, Width: w})
	}
	return d
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryOr404(w, r)
	if !ok {
		return
	}
	s.render(w, pageTemplate, newPageData(e))
	e.markViewed()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, indexTemplate, s.listings())
}

func (s *Server) render(w http.ResponseWriter, t *template.Template, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		s.logger.Error("Render failed", map[string]interface{}{"template": t.Name(), "error": err.Error()})
	}
}
