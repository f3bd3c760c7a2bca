package content

import (
	"regexp"
	"strings"

	"github.com/ipfs/go-cid"
)

// Kind classifies a token pointer.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindContentAddressed
	KindHTTP
	KindInline
)

func (k Kind) String() string {
	switch k {
	case KindContentAddressed:
		return "content-addressed"
	case KindHTTP:
		return "http"
	case KindInline:
		return "inline"
	default:
		return "unrecognized"
	}
}

const (
	ipfsScheme   = "ipfs://"
	ipfsMarker   = "/ipfs/"
	inlinePrefix = "data:"
)

// hashPattern matches CIDv0 (base58, "Qm") and base32 CIDv1 ("baf") content hashes.
var hashPattern = regexp.MustCompile(`Qm[1-9A-HJ-NP-Za-km-z]{44,}|baf[0-9A-Za-z]{50,}`)

// Pointer is a classified token URI.
type Pointer struct {
	Kind Kind
	Raw  string
	// Hash and Path are set when the URI embeds a decodable CID.
	// Hash is the CID's canonical string form. Path keeps anything that follows it, such as "/1.json".
	Hash string
	Path string
	// CIDVersion is 0 or 1 when Hash is set, otherwise -1.
	CIDVersion int
}

// HasHash reports whether gateway fallback is possible.
func (p Pointer) HasHash() bool {
	return p.Hash != ""
}

// IsHTTP reports whether the raw URI is already an http(s) URL.
func (p Pointer) IsHTTP() bool {
	lower := strings.ToLower(p.Raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Classify inspects a token URI without touching the network.
// A hash-shaped run that does not decode as a CID is not treated as content-addressed.
func Classify(uri string) Pointer {
	raw := strings.TrimSpace(uri)
	p := Pointer{Raw: raw, CIDVersion: -1}
	lower := strings.ToLower(raw)

	if strings.HasPrefix(lower, inlinePrefix) {
		p.Kind = KindInline
		return p
	}

	if loc := hashPattern.FindStringIndex(raw); loc != nil {
		if c, err := cid.Decode(raw[loc[0]:loc[1]]); err == nil {
			p.Hash = c.String()
			p.CIDVersion = int(c.Version())
			if rest := raw[loc[1]:]; strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, "?") {
				p.Path = rest
			}
		}
	}

	switch {
	case p.HasHash() || strings.HasPrefix(lower, ipfsScheme) || strings.Contains(lower, ipfsMarker):
		p.Kind = KindContentAddressed
	case p.IsHTTP():
		p.Kind = KindHTTP
	default:
		p.Kind = KindUnrecognized
	}
	return p
}

// IsContentAddressed reports whether uri points into content-addressed storage.
func IsContentAddressed(uri string) bool {
	return Classify(uri).Kind == KindContentAddressed
}
