package table

import "strings"

// cellEscaper escapes the markup characters only. Quotes are left as is.
var cellEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// HTML renders the table as HTML markup. The output is deterministic and
// cell values are escaped.
func (t *Table) HTML() string {
	var b strings.Builder

	b.WriteString("<table border=\"1\" class=\"dataframe\">\n")
	b.WriteString("  <thead>\n")
	b.WriteString("    <tr style=\"text-align: right;\">\n")
	b.WriteString("      <th></th>\n")
	for _, col := range t.columns {
		writeCell(&b, "th", col)
	}
	b.WriteString("    </tr>\n")
	b.WriteString("  </thead>\n")

	b.WriteString("  <tbody>\n")
	for i, row := range t.rows {
		b.WriteString("    <tr>\n")
		writeCell(&b, "th", t.index[i])
		for _, cell := range row {
			writeCell(&b, "td", cell)
		}
		b.WriteString("    </tr>\n")
	}
	b.WriteString("  </tbody>\n")
	b.WriteString("</table>")

	return b.String()
}

func writeCell(b *strings.Builder, tag, value string) {
	b.WriteString("      <")
	b.WriteString(tag)
	b.WriteString(">")
	b.WriteString(cellEscaper.Replace(value))
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString(">\n")
}
