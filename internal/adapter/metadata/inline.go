package metadata

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"nft-metadata-resolver/internal/domain"
)

// DecodeInline decodes a data: URI carrying the document itself, either base64 or percent-encoded.
func DecodeInline(uri string) ([]byte, error) {
	raw := strings.TrimSpace(uri)
	if len(raw) < len("data:") || !strings.EqualFold(raw[:len("data:")], "data:") {
		return nil, fmt.Errorf("%w: not a data uri", domain.ErrMalformedDocument)
	}

	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: data uri has no payload separator", domain.ErrMalformedDocument)
	}

	isBase64 := false
	for _, param := range strings.Split(header, ";")[1:] {
		if strings.EqualFold(strings.TrimSpace(param), "base64") {
			isBase64 = true
		}
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: percent-decoding inline document: %v", domain.ErrMalformedDocument, err)
		}
		return []byte(decoded), nil
	}

	encoded := strings.TrimSpace(payload)
	if unescaped, err := url.PathUnescape(encoded); err == nil {
		encoded = unescaped
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(encoded); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("%w: inline document is not valid base64", domain.ErrMalformedDocument)
}
