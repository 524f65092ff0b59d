package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"html/template"
	"sort"
	"strings"
	"time"
)

// ErrPDFUnavailable menandakan renderer PDF belum dikonfigurasi.
var ErrPDFUnavailable = errors.New("audit: pdf renderer unavailable")

// PDFRenderer mengubah HTML menjadi PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Exporter menulis ekspor CSV dan PDF untuk audit timeline.
type Exporter struct {
	pdf PDFRenderer
}

// NewExporter membuat exporter; pdf boleh nil.
func NewExporter(pdf PDFRenderer) *Exporter {
	return &Exporter{pdf: pdf}
}

// WriteCSV menulis baris timeline ke CSV.
func (e *Exporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"occurred_at", "event_type", "actor", "subject", "metadata"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			string(row.Type),
			csvSafe(row.Actor),
			csvSafe(row.Subject),
			csvSafe(FormatMetadata(row.Metadata)),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPDF merender view model menjadi PDF melalui renderer eksternal.
func (e *Exporter) RenderPDF(ctx context.Context, vm ViewModel) ([]byte, error) {
	if e == nil || e.pdf == nil {
		return nil, ErrPDFUnavailable
	}
	var buf bytes.Buffer
	if err := pdfTemplate.Execute(&buf, vm); err != nil {
		return nil, err
	}
	return e.pdf.RenderHTML(ctx, buf.String())
}

// FormatMetadata menyusun metadata sebagai key=value yang terurut.
func FormatMetadata(md map[string]string) string {
	if len(md) == 0 {
		return ""
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+md[k])
	}
	return strings.Join(parts, " ")
}

// csvSafe neutralises spreadsheet formula prefixes.
func csvSafe(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@':
		return "'" + v
	}
	return v
}

var pdfTemplate = template.Must(template.New("audit_pdf").Funcs(template.FuncMap{
	"meta": FormatMetadata,
}).Parse(`<html><head><meta charset="utf-8"><title>Security Events</title></head><body>
<h1>Security Events</h1>
<table>
<tr><th>At</th><th>Type</th><th>Actor</th><th>Subject</th><th>Metadata</th></tr>
{{range .Rows}}<tr><td>{{.At.Format "2006-01-02 15:04:05"}}</td><td>{{.Type}}</td><td>{{.Actor}}</td><td>{{.Subject}}</td><td>{{meta .Metadata}}</td></tr>
{{end}}</table></body></html>`))
