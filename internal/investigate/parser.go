package investigate

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Patterns applied to the raw page source. Matching the source rather than
// the rendered text also catches values inside attributes such as mailto:
// links and data-* fields.
var (
	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Bitcoin P2PKH (1...) and P2SH (3...) addresses.
	btcRegex = regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{26,33}\b`)

	// Monero standard addresses: 95 base58 characters starting with 4.
	moneroRegex = regexp.MustCompile(`\b4[0-9AB][1-9A-HJ-NP-Za-km-z]{93}\b`)

	ethereumRegex = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
)

// page is what the investigator needs from a parsed document.
type page struct {
	title string
	links []string
}

// parsePage walks the document and collects the title and the absolute
// http(s) anchors, unique and in document order, up to maxLinks.
func parsePage(source string, maxLinks int) page {
	var p page

	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return p
	}

	seen := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if p.title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					p.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				href := strings.TrimSpace(getAttr(n, "href"))
				if isAbsoluteHTTP(href) && len(p.links) < maxLinks {
					if _, dup := seen[href]; !dup {
						seen[href] = struct{}{}
						p.links = append(p.links, href)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return p
}

func isAbsoluteHTTP(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// uniqueMatches returns the unique matches of re in s in order of first
// appearance. normalize, when non-nil, maps each match before deduplication.
func uniqueMatches(re *regexp.Regexp, s string, normalize func(string) string) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, m := range re.FindAllString(s, -1) {
		if normalize != nil {
			m = normalize(m)
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
