package assets

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Ref is a handle to one asset reference inside a parsed document. The
// underlying selection stays attached to the document, so ApplyReplacement
// mutates the document in place.
type Ref struct {
	sel    *goquery.Selection
	attr   string
	srcset bool
	raw    string
}

// Raw returns the reference's original attribute value.
func (r *Ref) Raw() string { return r.raw }

// Srcset reports whether the reference uses srcset multi-candidate syntax.
func (r *Ref) Srcset() bool { return r.srcset }

// singleAttrSelectors lists element/attribute pairs carrying one URL each.
var singleAttrSelectors = []struct{ selector, attr string }{
	{"img[src]", "src"},
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"source[src]", "src"},
	{"video[src]", "src"},
	{"audio[src]", "src"},
}

// Extract walks doc and produces one reference per matching attribute.
// References with empty raw values are discarded.
func Extract(doc *goquery.Document) []*Ref {
	var refs []*Ref
	for _, sa := range singleAttrSelectors {
		attr := sa.attr
		doc.Find(sa.selector).Each(func(_ int, sel *goquery.Selection) {
			v, _ := sel.Attr(attr)
			if v == "" {
				return
			}
			refs = append(refs, &Ref{sel: sel, attr: attr, raw: v})
		})
	}
	doc.Find("img[srcset], source[srcset]").Each(func(_ int, sel *goquery.Selection) {
		v, _ := sel.Attr("srcset")
		if v == "" {
			return
		}
		refs = append(refs, &Ref{sel: sel, attr: "srcset", srcset: true, raw: v})
	})
	return refs
}

// CandidateURLs returns the URLs this reference points at: the attribute
// value itself, or the URL token of every srcset candidate. Candidates are
// comma-separated; within a candidate the first whitespace-separated token is
// the URL and the rest are descriptors (2x, 800w, ...).
func (r *Ref) CandidateURLs() []string {
	if !r.srcset {
		return []string{r.raw}
	}
	var urls []string
	for _, cand := range strings.Split(r.raw, ",") {
		fields := strings.Fields(strings.TrimSpace(cand))
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

// ApplyReplacement sets the reference's attribute to replacement. For srcset
// every candidate collapses to the same replacement URL while descriptors and
// comma separators are preserved.
func (r *Ref) ApplyReplacement(replacement string) {
	if !r.srcset {
		r.sel.SetAttr(r.attr, replacement)
		return
	}
	cands := strings.Split(r.raw, ",")
	out := make([]string, 0, len(cands))
	for _, cand := range cands {
		fields := strings.Fields(strings.TrimSpace(cand))
		if len(fields) == 0 {
			continue
		}
		fields[0] = replacement
		out = append(out, strings.Join(fields, " "))
	}
	r.sel.SetAttr(r.attr, strings.Join(out, ", "))
}
