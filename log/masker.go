/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package log

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// FieldMaskFormat is a format in which a masked field may appear in logged text.
type FieldMaskFormat string

// Field mask formats.
const (
	// FieldMaskFormatHTTPHeader masks "Field: value\r\n" lines of dumped HTTP messages.
	FieldMaskFormatHTTPHeader FieldMaskFormat = "http_header"
	// FieldMaskFormatJSON masks the whole string value of the JSON field.
	FieldMaskFormatJSON FieldMaskFormat = "json"
	// FieldMaskFormatURLEncoded masks "field=value" pairs of query strings and forms.
	FieldMaskFormatURLEncoded FieldMaskFormat = "urlencoded"
	// FieldMaskFormatJSONKeepTail masks the JSON string value except its last 3 digits,
	// so phone numbers stay recognizable for support staff ("*****456").
	FieldMaskFormatJSONKeepTail FieldMaskFormat = "json_keep_tail"
)

func (f FieldMaskFormat) valid() bool {
	switch f {
	case FieldMaskFormatHTTPHeader, FieldMaskFormatJSON, FieldMaskFormatURLEncoded, FieldMaskFormatJSONKeepTail:
		return true
	}
	return false
}

// Mask replaces every match of RegExp with Mask ($1-style group references are expanded).
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

// NewMask compiles the mask. It panics on invalid regular expressions.
func NewMask(cfg MaskConfig) Mask {
	return Mask{regexp.MustCompile(cfg.RegExp), cfg.Mask}
}

// FieldMasker holds all masks of one field.
type FieldMasker struct {
	Field string // lower-cased
	Masks []Mask
}

// NewFieldMasker builds masks for the field in every configured format.
func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fm := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks)+len(cfg.Formats))}
	for _, maskCfg := range cfg.Masks {
		fm.Masks = append(fm.Masks, NewMask(maskCfg))
	}
	name := regexp.QuoteMeta(cfg.Field)
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + name + `: .+?\r\n`, cfg.Field + ": ***\r\n"}))
		case FieldMaskFormatJSON:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)"` + name + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "***"`}))
		case FieldMaskFormatURLEncoded:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + name + `\s*=\s*[^&\s]+`, cfg.Field + "=***"}))
		case FieldMaskFormatJSONKeepTail:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{
				`(?i)"` + name + `"\s*:\s*"[^"]*?(\d{3})"`, `"` + cfg.Field + `": "***${1}"`}))
		}
	}
	return fm
}

// Masker masks secrets and personal data in strings.
// Field names are searched in one pass over the lower-cased text, regular expressions
// run only for fields that are present.
type Masker struct {
	FieldMasks []FieldMasker

	matcher         *ahocorasick.Matcher
	fieldMasksByHit [][]int
}

// NewMasker creates a Masker for the rules.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	var dictionary []string
	hitIdx := make(map[string]int)
	for i, rule := range rules {
		fm := NewFieldMasker(rule)
		m.FieldMasks = append(m.FieldMasks, fm)
		idx, ok := hitIdx[fm.Field]
		if !ok {
			idx = len(dictionary)
			hitIdx[fm.Field] = idx
			dictionary = append(dictionary, fm.Field)
			m.fieldMasksByHit = append(m.fieldMasksByHit, nil)
		}
		m.fieldMasksByHit[idx] = append(m.fieldMasksByHit[idx], i)
	}
	if len(dictionary) != 0 {
		m.matcher = ahocorasick.NewStringMatcher(dictionary)
	}
	return m
}

// Mask returns s with all configured fields masked.
func (m *Masker) Mask(s string) string {
	if m.matcher == nil {
		return s
	}
	hits := m.matcher.MatchThreadSafe([]byte(strings.ToLower(s)))
	if len(hits) == 0 {
		return s
	}
	var fieldMaskIndexes []int
	for _, hit := range hits {
		if hit >= 0 && hit < len(m.fieldMasksByHit) {
			fieldMaskIndexes = append(fieldMaskIndexes, m.fieldMasksByHit[hit]...)
		}
	}
	// Rules are applied in configuration order regardless of where fields occur in the text.
	sort.Ints(fieldMaskIndexes)
	for i, idx := range fieldMaskIndexes {
		if i > 0 && fieldMaskIndexes[i-1] == idx {
			continue
		}
		for _, mask := range m.FieldMasks[idx].Masks {
			s = mask.RegExp.ReplaceAllString(s, mask.Mask)
		}
	}
	return s
}

// DefaultMasks hide credentials of the portal backend and personal data of requesters.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "apikey",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader, FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "password",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "access_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "refresh_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "requester_phone",
		Formats: []FieldMaskFormat{FieldMaskFormatJSONKeepTail},
	},
	{
		Field:   "msisdn",
		Formats: []FieldMaskFormat{FieldMaskFormatJSONKeepTail, FieldMaskFormatURLEncoded},
	},
}
