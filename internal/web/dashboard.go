package web

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/database"
)

type dashboardData struct {
	Counts *database.Counts
	Status database.Status
	Alerts []Alert
}

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"pct": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return formatFloat(*v*100, 1) + "%"
	},
	"kwh": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return formatFloat(*v, 2)
	},
}).Parse(dashboardHTML))

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// GET /?status=
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	status, err := alerting.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	counts, err := s.service.Stats(r.Context())
	if err != nil {
		s.logger.Error("dashboard stats failed", "error", err)
		http.Error(w, "failed to load alert statistics", http.StatusInternalServerError)
		return
	}
	alerts, err := s.service.List(r.Context(), status, "", "")
	if err != nil {
		s.logger.Error("dashboard alerts failed", "error", err)
		http.Error(w, "failed to load alerts", http.StatusInternalServerError)
		return
	}

	data := dashboardData{Counts: counts, Status: status}
	for _, a := range alerts {
		data.Alerts = append(data.Alerts, toAlert(a))
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, data); err != nil {
		s.logger.Error("dashboard render failed", "error", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Solar Performance Alerts</title>
<style>
  body { font-family: Arial, sans-serif; margin: 2em; background: #f7f7f7; }
  .stats { display: flex; gap: 1em; margin-bottom: 1.5em; }
  .stat { background: white; padding: 1em 1.5em; border-radius: 6px; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
  .stat b { display: block; font-size: 1.8em; }
  table { border-collapse: collapse; width: 100%; background: white; }
  th { background: #d9534f; color: white; padding: 8px; text-align: left; }
  td { border-bottom: 1px solid #ddd; padding: 8px; }
  .pending { color: #d9534f; font-weight: bold; }
  .sent { color: #f0ad4e; }
  .acknowledged { color: #5cb85c; }
  button { margin-right: 4px; }
</style>
</head>
<body>
<h1>☀️ Solar Performance Alerts</h1>
<div class="stats">
  <div class="stat"><b>{{.Counts.Total}}</b>total</div>
  <div class="stat"><b>{{.Counts.Pending}}</b>pending</div>
  <div class="stat"><b>{{.Counts.Sent}}</b>sent</div>
  <div class="stat"><b>{{.Counts.Acknowledged}}</b>acknowledged</div>
</div>
<p>
  Filter:
  <a href="/?status=all">all</a> |
  <a href="/?status=pending">pending</a> |
  <a href="/?status=sent">sent</a> |
  <a href="/?status=acknowledged">acknowledged</a>
  (showing {{.Status}})
</p>
<p>
  <button onclick="act('acknowledge', '', '')">Acknowledge all</button>
  <button onclick="act('reset', '', '')">Reset all</button>
</p>
<table>
  <tr><th>Date</th><th>Installation</th><th>Actual (kWh)</th><th>Expected (kWh)</th><th>Performance</th><th>Status</th><th></th></tr>
  {{range .Alerts}}
  <tr>
    <td>{{.Date}}</td>
    <td><strong>{{.PodName}}</strong><br/><small>{{.PodCode}}</small></td>
    <td>{{printf "%.2f" .ValueKWh}}</td>
    <td>{{kwh .ExpectedKWh}}</td>
    <td>{{pct .PerformanceRatio}}</td>
    <td class="{{.Status}}">{{.Status}}</td>
    <td>
      <button data-pod="{{.PodCode}}" data-date="{{.Date}}" onclick="act('acknowledge', this.dataset.pod, this.dataset.date)">Acknowledge</button>
      <button data-pod="{{.PodCode}}" data-date="{{.Date}}" onclick="act('reset', this.dataset.pod, this.dataset.date)">Reset</button>
    </td>
  </tr>
  {{else}}
  <tr><td colspan="7">No alerts</td></tr>
  {{end}}
</table>
<script>
function act(action, pod, date) {
  if (!pod && !date && !confirm(action + ' ALL alerts?')) return;
  const q = new URLSearchParams();
  if (pod) q.set('pod_code', pod);
  if (date) q.set('date', date);
  fetch('/api/alerts/' + action + '?' + q.toString(), {method: 'POST'})
    .then(r => r.json())
    .then(body => { alert(body.message); location.reload(); });
}
</script>
</body>
</html>
`
