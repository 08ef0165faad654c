package ui

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/url"

	"github.com/a-h/templ"
)

// Record represents a single media record for display.
type Record struct {
	ID        string
	Filename  string
	MimeType  string
	CreatedAt string
	UpdatedAt string
}

// Report is the result of comparing records with stored objects.
type Report struct {
	Orphans  []string
	Dangling []string
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<!DOCTYPE html><html lang=\"en\">")
		if err != nil {
			return err
		}

		_, err = io.WriteString(w, "<head><meta charset=\"utf-8\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "<title>%s</title>", html.EscapeString(title))
		if err != nil {
			return err
		}
		// Minimal modern CSS framework (Pico.css) via CDN.
		_, err = io.WriteString(w, "<link rel=\"stylesheet\" href=\"https://unpkg.com/@picocss/pico@2/css/pico.min.css\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "</head><body><main class=\"container\">")
		if err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		_, err = io.WriteString(w, "</main></body></html>")
		return err
	})
}

// mediaURL links to the raw object on the gateway.
func mediaURL(gatewayURL string, id string) string {
	u, err := url.JoinPath(gatewayURL, "media", id)
	if err != nil {
		return "#"
	}
	return u
}

// RecordsPage renders the list of media records.
func RecordsPage(gatewayURL string, records []Record) templ.Component {
	return Layout("Media Gateway - Records", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<section><header><h1>Media Records</h1>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<p><a href=\"/report\">Consistency report</a></p></header>")
		if err != nil {
			return err
		}

		if len(records) == 0 {
			_, err = io.WriteString(w, "<p>No media stored.</p></section>")
			return err
		}

		_, err = io.WriteString(w, "<table><thead><tr><th>ID</th><th>Filename</th><th>Type</th><th>Created</th><th>Updated</th></tr></thead><tbody>")
		if err != nil {
			return err
		}

		for _, rec := range records {
			row := fmt.Sprintf("<tr><td><a href=\"%s\">%s</a></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
				html.EscapeString(mediaURL(gatewayURL, rec.ID)),
				html.EscapeString(rec.ID),
				html.EscapeString(rec.Filename),
				html.EscapeString(rec.MimeType),
				html.EscapeString(rec.CreatedAt),
				html.EscapeString(rec.UpdatedAt),
			)
			_, err = io.WriteString(w, row)
			if err != nil {
				return err
			}
		}

		_, err = io.WriteString(w, "</tbody></table></section>")
		return err
	}))
}

func writeKeyList(w io.Writer, heading string, empty string, keys []string) error {
	_, err := fmt.Fprintf(w, "<h2>%s</h2>", html.EscapeString(heading))
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		_, err = fmt.Fprintf(w, "<p>%s</p>", html.EscapeString(empty))
		return err
	}

	_, err = io.WriteString(w, "<ul>")
	if err != nil {
		return err
	}
	for _, k := range keys {
		_, err = fmt.Fprintf(w, "<li><code>%s</code></li>", html.EscapeString(k))
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "</ul>")
	return err
}

// ReportPage renders orphan objects and dangling records.
func ReportPage(report Report) templ.Component {
	return Layout("Media Gateway - Consistency", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<section><header><h1>Consistency Report</h1>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<p><a href=\"/\">&larr; Back to records</a></p></header>")
		if err != nil {
			return err
		}

		if err := writeKeyList(w, "Orphan objects", "Every stored object has a record.", report.Orphans); err != nil {
			return err
		}
		if err := writeKeyList(w, "Dangling records", "Every record has a stored object.", report.Dangling); err != nil {
			return err
		}

		_, err = io.WriteString(w, "</section>")
		return err
	}))
}
