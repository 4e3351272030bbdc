package report

import (
	"bufio"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/domcapture/internal/capture"
)

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Screenshot report {{.Generated}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
.capture { margin-bottom: 2em; padding-bottom: 1em; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>
<h1>Screenshot report</h1>
<p>Generated {{.Generated}}. {{len .Captures}} of {{.Total}} URLs captured.{{if .Partial}} Run was interrupted; results are partial.{{end}}</p>
{{range .Captures}}<div class="capture">
<h2>{{.Title}}</h2>
<p><a href="{{.URL}}">{{.URL}}</a> captured {{.Timestamp}}</p>
<img src="{{.Image}}" width="500" alt="{{.Title}}">
</div>
{{end}}</body>
</html>
`))

type htmlCapture struct {
	Title     string
	URL       string
	Timestamp string
	Image     string
}

type htmlPage struct {
	Generated string
	Total     int
	Partial   bool
	Captures  []htmlCapture
}

// writeHTML renders one block per successful capture; failures are omitted.
// Image sources are made relative to dir.
func writeHTML(w io.Writer, dir string, records []capture.Record, generated time.Time, partial bool) error {
	page := htmlPage{
		Generated: generated.Format(TimestampLayout),
		Total:     len(records),
		Partial:   partial,
	}
	for _, rec := range records {
		if !rec.Outcome.Succeeded() {
			continue
		}
		page.Captures = append(page.Captures, htmlCapture{
			Title:     rec.Outcome.Title,
			URL:       rec.URL,
			Timestamp: rec.Outcome.Timestamp.Format(TimestampLayout),
			Image:     relativeImage(dir, rec.Outcome.ScreenshotPath),
		})
	}
	bw := bufio.NewWriter(w)
	if err := pageTemplate.Execute(bw, page); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush html report: %w", err)
	}
	return nil
}

func relativeImage(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
