package fetch

import (
	"net/url"
	"path"
	"strings"
)

// octetStream is the fallback media type.
const octetStream = "application/octet-stream"

// assetTypes maps file extensions of page assets to media types.
var assetTypes = map[string]string{
	".css":   "text/css",
	".js":    "application/javascript",
	".png":   "image/png",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
}

// ResolveContentType returns the media type to serve a resource with.
// Onion servers often answer assets with a missing or text/html Content-Type;
// in those cases the type is inferred from the URL's extension.
func ResolveContentType(rawURL, header string) string {
	header = strings.TrimSpace(header)
	inferred, known := InferContentType(rawURL)

	switch {
	case header == "":
		return inferred
	case known && strings.Contains(strings.ToLower(header), "text/html"):
		return inferred
	default:
		return header
	}
}

// InferContentType maps the URL path's extension to a media type. The second
// result reports whether the extension was recognized; unrecognized
// extensions yield application/octet-stream.
func InferContentType(rawURL string) (string, bool) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if ct, ok := assetTypes[strings.ToLower(path.Ext(p))]; ok {
		return ct, true
	}
	return octetStream, false
}
