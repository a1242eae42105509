package remote

import (
	"strings"
)

// ContentTypeDefault is the only repository content type the connector
// understands. Endpoints tagged with anything else are refused.
const ContentTypeDefault = "default"

type Auth struct {
	Username string
	Password string
}

type Proxy struct {
	Host string
	Port int
	Auth *Auth
}

// Endpoint describes one remote repository. Immutable after construction.
type Endpoint struct {
	// URL is the absolute repository root, e.g. "https://repo.example.com/maven2".
	URL         string
	ContentType string
	Auth        *Auth
	Proxy       *Proxy
}

func New(url string) Endpoint {
	return Endpoint{
		URL:         url,
		ContentType: ContentTypeDefault,
	}
}

// Supported reports whether the endpoint scheme is one the connector can
// speak: http, https, dav, dav:http, dav:https.
func (e Endpoint) Supported() bool {
	u := strings.ToLower(e.URL)
	return strings.HasPrefix(u, "http") || strings.HasPrefix(u, "dav")
}

// Secure reports whether the underlying transport is TLS. The dav:https
// form counts as secure since the dav prefix is dropped before dialing.
func (e Endpoint) Secure() bool {
	u := strings.ToLower(e.URL)
	return strings.HasPrefix(u, "https") || strings.HasPrefix(u, "dav:https")
}

// BuildURL joins the repository root and a relative resource path with
// exactly one slash. Spaces in the path are sent as '+'.
func (e Endpoint) BuildURL(path string) string {
	path = strings.ReplaceAll(path, " ", "+")
	if strings.HasSuffix(e.URL, "/") {
		return e.URL + path
	}
	return e.URL + "/" + path
}

// ResolveURL builds the resource URL and normalizes any dav scheme away.
func (e Endpoint) ResolveURL(path string) string {
	return NormalizeURL(e.BuildURL(path))
}

// NormalizeURL rewrites dav-flavored URLs for plain HTTP transport:
// "dav:http://..." and "dav:https://..." lose the "dav:" prefix, and the
// bare "dav://..." form becomes "http://...". No dav methods are ever
// issued, so the underlying scheme is all that matters.
func NormalizeURL(u string) string {
	const dav = "dav"
	if !strings.HasPrefix(u, dav) {
		return u
	}
	if strings.HasPrefix(u, dav+":http") {
		return u[len(dav)+1:]
	}
	return "http" + u[len(dav):]
}
