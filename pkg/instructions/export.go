package instructions

import (
	"fmt"
	"html"
	"strings"
)

// ExportHTML renders d as a standalone HTML document: one heading per
// section, steps as an ordered list, subinstructions nested beneath.
func ExportHTML(d *Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html lang=%q>\n<head>\n", d.Language)
	fmt.Fprintf(&b, "<meta charset=\"utf-8\">\n<title>%s Instructions</title>\n", html.EscapeString(d.AssemblyName))
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(d.AssemblyName))
	fmt.Fprintf(&b, "<p>Difficulty: %s. Estimated time: %d minutes.</p>\n",
		d.Difficulty, d.Metadata.EstimatedMinutes)

	for _, sec := range d.Sections {
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(sec.Title))
		if len(sec.Steps) == 0 {
			continue
		}
		b.WriteString("<ol>\n")
		for _, step := range sec.Steps {
			b.WriteString("<li>")
			if step.Title != "" {
				fmt.Fprintf(&b, "<strong>%s.</strong> ", html.EscapeString(step.Title))
			}
			b.WriteString(html.EscapeString(step.Text))
			if len(step.Sub) > 0 {
				b.WriteString("\n<ul>\n")
				for _, sub := range step.Sub {
					fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(sub))
				}
				b.WriteString("</ul>\n")
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ol>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// ExportMarkdown renders d as markdown: document title at level one,
// sections at level two, titled steps at level three. Materials render
// as a bold bullet list.
func ExportMarkdown(d *Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.AssemblyName)
	fmt.Fprintf(&b, "Difficulty: %s. Estimated time: %d minutes.\n\n",
		d.Difficulty, d.Metadata.EstimatedMinutes)

	for _, sec := range d.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		if sec.ID == SectionMaterials {
			for _, step := range sec.Steps {
				fmt.Fprintf(&b, "- **%s**: %s\n", step.Title, step.Text)
			}
			if len(sec.Steps) > 0 {
				b.WriteString("\n")
			}
			continue
		}
		for _, step := range sec.Steps {
			if step.Title != "" {
				fmt.Fprintf(&b, "### Step %d: %s\n\n", step.Number, step.Title)
				if step.Text != "" {
					b.WriteString(step.Text + "\n\n")
				}
			} else {
				fmt.Fprintf(&b, "%d. %s\n", step.Number, step.Text)
				continue
			}
			for _, sub := range step.Sub {
				fmt.Fprintf(&b, "- %s\n", sub)
			}
			if len(step.Sub) > 0 {
				b.WriteString("\n")
			}
		}
		if allUntitled(sec.Steps) && len(sec.Steps) > 0 {
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func allUntitled(steps []Step) bool {
	for _, s := range steps {
		if s.Title != "" {
			return false
		}
	}
	return true
}
