package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Metadata is the normalized record for one token. Nil pointers mean the field was absent or blank.
type Metadata struct {
	Chain           string
	ContractAddress string
	TokenID         string

	Name         *string
	Description  *string
	Image        *string
	ImageURL     *string
	AnimationURL *string
	ExternalURL  *string
	Attributes   []Attribute
	TokenURI     *string
	RawMetadata  RawDocument

	UpdatedAt time.Time
}

// Identity returns the key the record is stored under.
func (m Metadata) Identity() TokenIdentity {
	return TokenIdentity{Chain: m.Chain, ContractAddress: m.ContractAddress, TokenID: m.TokenID}
}

// WithIdentity stamps the record with the given identity.
func (m Metadata) WithIdentity(id TokenIdentity) Metadata {
	m.Chain = id.Chain
	m.ContractAddress = id.ContractAddress
	m.TokenID = id.TokenID
	return m
}

// Clone returns a deep copy that shares no pointers, slices or document bytes with m.
func (m Metadata) Clone() Metadata {
	m.Name = cloneString(m.Name)
	m.Description = cloneString(m.Description)
	m.Image = cloneString(m.Image)
	m.ImageURL = cloneString(m.ImageURL)
	m.AnimationURL = cloneString(m.AnimationURL)
	m.ExternalURL = cloneString(m.ExternalURL)
	m.TokenURI = cloneString(m.TokenURI)
	if m.Attributes != nil {
		attrs := make([]Attribute, len(m.Attributes))
		for i, a := range m.Attributes {
			a.DisplayType = cloneString(a.DisplayType)
			attrs[i] = a
		}
		m.Attributes = attrs
	}
	if m.RawMetadata != nil {
		m.RawMetadata = append(RawDocument(nil), m.RawMetadata...)
	}
	return m
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// IsValid reports whether the record carries a name or an image.
func (m Metadata) IsValid() bool {
	return m.Name != nil || m.Image != nil
}

// Attribute is one trait of a token.
type Attribute struct {
	TraitType   string         `json:"trait_type"`
	Value       AttributeValue `json:"value"`
	DisplayType *string        `json:"display_type,omitempty"`
}

// AttributeValue holds either a string or a number. Numbers keep their literal JSON form.
type AttributeValue struct {
	text    string
	number  json.Number
	numeric bool
}

// StringValue wraps a textual trait value.
func StringValue(s string) AttributeValue {
	return AttributeValue{text: s}
}

// NumberValue wraps a numeric trait value.
func NumberValue(n json.Number) AttributeValue {
	return AttributeValue{number: n, numeric: true}
}

// IsNumber reports whether the value is numeric.
func (v AttributeValue) IsNumber() bool {
	return v.numeric
}

// Number returns the numeric literal. Empty for string values.
func (v AttributeValue) Number() json.Number {
	return v.number
}

// Float64 converts a numeric value.
func (v AttributeValue) Float64() (float64, error) {
	if !v.numeric {
		return 0, fmt.Errorf("attribute value %q is not numeric", v.text)
	}
	return v.number.Float64()
}

func (v AttributeValue) String() string {
	if v.numeric {
		return v.number.String()
	}
	return v.text
}

func (v AttributeValue) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return []byte(v.number), nil
	}
	return json.Marshal(v.text)
}

func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = StringValue(t)
	case json.Number:
		*v = NumberValue(t)
	case bool:
		*v = StringValue(strconv.FormatBool(t))
	default:
		return fmt.Errorf("attribute value must be a string or number, got %s", string(data))
	}
	return nil
}

// ErrNotJSONObject is returned when a raw document is not a JSON object.
var ErrNotJSONObject = errors.New("document is not a JSON object")

// RawDocument is the source metadata document, kept verbatim. It is always a JSON object or empty.
type RawDocument []byte

// NewRawDocument accepts data only if it is a single JSON object.
func NewRawDocument(data []byte) (RawDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrNotJSONObject
	}
	doc := make(RawDocument, len(trimmed))
	copy(doc, trimmed)
	return doc, nil
}

// IsEmpty reports whether no document is held.
func (d RawDocument) IsEmpty() bool {
	return len(d) == 0
}

func (d RawDocument) MarshalJSON() ([]byte, error) {
	if d.IsEmpty() {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *RawDocument) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}
	doc, err := NewRawDocument(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}
