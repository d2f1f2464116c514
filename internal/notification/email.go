package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smukkama/solar-watch/internal/database"
	"github.com/smukkama/solar-watch/pkg/config"
)

// ErrNotConfigured is returned when SMTP credentials or recipients are missing
var ErrNotConfigured = errors.New("email notification not configured")

// DateGroup holds the alerts of one day
type DateGroup struct {
	Date   string
	Alerts []AlertRow
}

// AlertRow is one rendered alert line
type AlertRow struct {
	PodName         string
	PodCode         string
	OBISCode        string
	ActualKWh       float64
	ExpectedKWh     float64
	PerformancePct  float64
	SunHours        float64
	IrradianceKWhM2 float64
}

// Digest is the content of one alert email
type Digest struct {
	Count        int
	ThresholdPct float64
	Groups       []DateGroup
}

// Subject returns the email subject line
func (d *Digest) Subject() string {
	return fmt.Sprintf("⚠️ Solar Performance Alert - %d Installation(s) Underperforming", d.Count)
}

// BuildDigest groups alerts by date, newest first, keeping the input order
// within a day
func BuildDigest(alerts []*database.Observation, threshold float64) *Digest {
	byDate := make(map[string][]AlertRow)
	for _, a := range alerts {
		byDate[a.Date] = append(byDate[a.Date], AlertRow{
			PodName:         a.PodName,
			PodCode:         a.PodCode,
			OBISCode:        a.OBISCode,
			ActualKWh:       a.ValueKWh,
			ExpectedKWh:     deref(a.ExpectedKWh),
			PerformancePct:  deref(a.PerformanceRatio) * 100,
			SunHours:        deref(a.SunHours),
			IrradianceKWhM2: deref(a.IrradianceKWhM2),
		})
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	digest := &Digest{Count: len(alerts), ThresholdPct: threshold * 100}
	for _, d := range dates {
		digest.Groups = append(digest.Groups, DateGroup{Date: d, Alerts: byDate[d]})
	}
	return digest
}

const digestTemplate = `<html>
<head>
<style>
  body { font-family: Arial, sans-serif; }
  h2 { color: #d9534f; }
  table { border-collapse: collapse; width: 100%; margin: 20px 0; }
  th { background-color: #d9534f; color: white; padding: 10px; text-align: left; }
  td { border: 1px solid #ddd; padding: 8px; }
  tr:nth-child(even) { background-color: #f2f2f2; }
  .warning { color: #d9534f; font-weight: bold; }
  .info { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h2>⚠️ Solar Performance Alert</h2>
<p>The following installations are performing below {{printf "%.0f" .ThresholdPct}}% of expected output:</p>
{{range .Groups}}
<h3>Date: {{.Date}}</h3>
<table>
  <tr><th>Installation</th><th>Actual (kWh)</th><th>Expected (kWh)</th><th>Performance</th><th>Weather</th></tr>
  {{range .Alerts}}
  <tr>
    <td><strong>{{.PodName}}</strong><br/><span class="info">{{.PodCode}} / {{.OBISCode}}</span></td>
    <td>{{printf "%.2f" .ActualKWh}}</td>
    <td>{{printf "%.2f" .ExpectedKWh}}</td>
    <td class="warning">{{printf "%.1f" .PerformancePct}}%</td>
    <td>{{printf "%.1f" .SunHours}}h sun<br/>{{printf "%.2f" .IrradianceKWhM2}} kWh/m²</td>
  </tr>
  {{end}}
</table>
{{end}}
<hr/>
<p class="info"><strong>Note:</strong> These alerts will not be sent again until they are reset.</p>
<p class="info">Acknowledge them from the dashboard or with <code>alertctl acknowledge --confirm</code>.</p>
</body>
</html>
`

var digestTmpl = template.Must(template.New("digest").Parse(digestTemplate))

// Render produces the HTML body of the digest
func (d *Digest) Render() (string, error) {
	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

// EmailNotifier sends alert digests over SMTP
type EmailNotifier struct {
	config     *config.SMTPConfig
	recipients []string
	threshold  float64
	logger     *slog.Logger

	send func(ctx context.Context, to []string, msg []byte) error
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, recipients []string, threshold float64, logger *slog.Logger) *EmailNotifier {
	e := &EmailNotifier{
		config:     cfg,
		recipients: recipients,
		threshold:  threshold,
		logger:     logger,
	}
	e.send = e.sendSMTP
	return e
}

// Configured reports whether the notifier can deliver mail
func (e *EmailNotifier) Configured() bool {
	return e.config.Host != "" && e.config.Username != "" && e.config.Password != "" &&
		e.config.From != "" && len(e.recipients) > 0
}

// SendAlertDigest renders and sends one email covering every alert.
// An empty list sends nothing.
func (e *EmailNotifier) SendAlertDigest(ctx context.Context, alerts []*database.Observation) error {
	if len(alerts) == 0 {
		return nil
	}
	if !e.Configured() {
		return ErrNotConfigured
	}

	digest := BuildDigest(alerts, e.threshold)
	body, err := digest.Render()
	if err != nil {
		return err
	}

	msg := e.compose(digest.Subject(), body, time.Now())
	if err := e.send(ctx, e.recipients, msg); err != nil {
		return err
	}

	e.logger.Info("alert email sent", "recipients", e.recipients, "alerts", digest.Count)
	return nil
}

func (e *EmailNotifier) compose(subject, body string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func (e *EmailNotifier) sendSMTP(ctx context.Context, to []string, msg []byte) error {
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))

	dialer := net.Dialer{Timeout: e.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if e.config.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(e.config.Timeout))
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: e.config.Host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	if err := client.Mail(e.config.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	// the message is accepted at this point
	if err := client.Quit(); err != nil {
		e.logger.Warn("SMTP QUIT failed after delivery", "host", e.config.Host, "error", err)
	}
	return nil
}

// TestConnection dials the SMTP server without sending mail
func (e *EmailNotifier) TestConnection(ctx context.Context) error {
	if !e.Configured() {
		return ErrNotConfigured
	}

	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))
	dialer := net.Dialer{Timeout: e.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()
	return client.Quit()
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
