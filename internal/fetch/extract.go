package fetch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EvaluateSchema runs a Schema against a parsed document and returns one
// Fields map per root match. Missing fields come back as empty strings; the
// caller decides what is noise.
func EvaluateSchema(doc *goquery.Document, s Schema) []Fields {
	var out []Fields

	doc.Find(s.Root).Each(func(_ int, root *goquery.Selection) {
		fields := make(Fields, len(s.Fields))
		for name, spec := range s.Fields {
			sel := root
			if spec.Selector != "" {
				sel = root.Find(spec.Selector).First()
			}

			if spec.Attr != "" {
				fields[name], _ = sel.Attr(spec.Attr)
			} else {
				fields[name] = strings.TrimSpace(sel.Text())
			}
		}
		out = append(out, fields)
	})

	return out
}
