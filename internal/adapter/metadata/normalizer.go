package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"nft-metadata-resolver/internal/adapter/content"
	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	domainService "nft-metadata-resolver/internal/domain/service"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.MetadataNormalizer = (*Normalizer)(nil)

// Normalizer loads token documents and maps them onto entity.Metadata.
type Normalizer struct {
	resolver domainService.ContentResolver
	logger   *zap.Logger
}

// NewNormalizer creates a normalizer that fetches remote documents through resolver.
func NewNormalizer(resolver domainService.ContentResolver, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		resolver: resolver,
		logger:   logger.Named("MetadataNormalizer"),
	}
}

// Load returns the raw document for a token pointer. Inline documents never hit the network.
func (n *Normalizer) Load(ctx context.Context, tokenURI string) ([]byte, error) {
	if content.Classify(tokenURI).Kind == content.KindInline {
		n.logger.Debug("Decoding inline token document")
		return DecodeInline(tokenURI)
	}
	return n.resolver.Fetch(ctx, tokenURI)
}

// Parse maps a JSON object onto a record. Identity, token pointer and timestamp are left for the caller.
func (n *Normalizer) Parse(raw []byte) (entity.Metadata, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return entity.Metadata{}, fmt.Errorf("%w: expected a JSON object", domain.ErrMalformedDocument)
	}
	doc, err := entity.NewRawDocument(raw)
	if err != nil {
		return entity.Metadata{}, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}

	m := entity.Metadata{
		Name:         scalarField(fields, "name"),
		Description:  scalarField(fields, "description"),
		Image:        scalarField(fields, "image", "image_url"),
		AnimationURL: scalarField(fields, "animation_url", "animationUrl"),
		ExternalURL:  scalarField(fields, "external_url", "externalUrl"),
		Attributes:   parseAttributes(fields["attributes"]),
		RawMetadata:  doc,
	}

	if m.Image != nil {
		imageURL := *m.Image
		if content.IsContentAddressed(imageURL) {
			imageURL = n.resolver.Normalize(imageURL)
		}
		m.ImageURL = &imageURL
	}

	return m, nil
}

// Validate reports whether the record has a name or an image.
func (n *Normalizer) Validate(m entity.Metadata) bool {
	return m.IsValid()
}

// scalarField returns the first of keys holding a non-blank scalar, coerced to text.
func scalarField(fields map[string]json.RawMessage, keys ...string) *string {
	for _, key := range keys {
		if s := scalarString(fields[key]); s != nil {
			return s
		}
	}
	return nil
}

func scalarString(raw json.RawMessage) *string {
	v, ok := decodeAny(raw)
	if !ok || v == nil {
		return nil
	}
	s := strings.TrimSpace(coerceText(v, raw))
	if s == "" {
		return nil
	}
	return &s
}

// parseAttributes keeps well-formed trait entries and drops the rest. Anything but a non-empty array yields nil.
func parseAttributes(raw json.RawMessage) []entity.Attribute {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var attrs []entity.Attribute
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			continue
		}
		traitType := scalarField(obj, "trait_type", "traitType")
		if traitType == nil {
			continue
		}
		value, ok := decodeAny(obj["value"])
		if !ok || value == nil {
			continue
		}

		attr := entity.Attribute{TraitType: *traitType, DisplayType: scalarField(obj, "display_type", "displayType")}
		if num, isNum := value.(json.Number); isNum {
			attr.Value = entity.NumberValue(num)
		} else {
			attr.Value = entity.StringValue(coerceText(value, obj["value"]))
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

func decodeAny(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func coerceText(v any, raw json.RawMessage) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return string(raw)
		}
		return buf.String()
	}
}
