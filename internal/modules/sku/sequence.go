// Package sku provides collision-free, human-readable SKU generation using
// per-(brand,category) counters serialized by row-level locks.
package sku

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openrentals/core/internal/domain"
)

// Sequence is a per-(brand,category) SKU counter. The row lock on the
// sequence row is the serialization point for number issuance.
type Sequence struct {
	domain.Audit
	BrandID          *uuid.UUID `db:"brand_id" json:"brand_id,omitempty"`
	CategoryID       *uuid.UUID `db:"category_id" json:"category_id,omitempty"`
	Prefix           string     `db:"prefix" json:"prefix"`
	Suffix           string     `db:"suffix" json:"suffix"`
	PaddingLength    int        `db:"padding_length" json:"padding_length"`
	FormatTemplate   string     `db:"format_template" json:"format_template"`
	NextSequence     int64      `db:"next_sequence" json:"next_sequence"`
	TotalGenerated   int64      `db:"total_generated" json:"total_generated"`
	LastGeneratedSKU *string    `db:"last_generated_sku" json:"last_generated_sku,omitempty"`
	LastGeneratedAt  *time.Time `db:"last_generated_at" json:"last_generated_at,omitempty"`
}

// DefaultTemplate is used when a sequence is created without an explicit
// format template.
const DefaultTemplate = "{prefix}{brand}{category}-{sequence}{suffix}"

var templateKeyPattern = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// builtinKeys are always available to a format template. Custom keys are
// supplied per generation call.
var builtinKeys = map[string]bool{
	"prefix":   true,
	"suffix":   true,
	"sequence": true,
	"padding":  true,
	"brand":    true,
	"category": true,
	"item":     true,
}

// ValidateTemplate rejects templates referencing keys that are neither
// built-in nor in customKeys. Called whenever a template is set or updated.
func ValidateTemplate(template string, customKeys []string) error {
	if strings.TrimSpace(template) == "" {
		return domain.NewValidationError("format_template", "template is empty")
	}
	custom := make(map[string]bool, len(customKeys))
	for _, k := range customKeys {
		custom[k] = true
	}
	for _, m := range templateKeyPattern.FindAllStringSubmatch(template, -1) {
		key := m[1]
		if !builtinKeys[key] && !custom[key] {
			return domain.NewValidationError("format_template", fmt.Sprintf("unknown template key {%s}", key))
		}
	}
	return nil
}

// RenderArgs carries the caller-provided values for one SKU rendering.
type RenderArgs struct {
	BrandCode    string
	CategoryCode string
	ItemName     string
	Custom       map[string]string
}

// Render produces the SKU for a given sequence number. {sequence} renders
// the number zero-padded to PaddingLength; {padding} is an alias kept for
// template compatibility.
func (s *Sequence) Render(number int64, args RenderArgs) string {
	padded := strconv.FormatInt(number, 10)
	if s.PaddingLength > len(padded) {
		padded = strings.Repeat("0", s.PaddingLength-len(padded)) + padded
	}

	return templateKeyPattern.ReplaceAllStringFunc(s.FormatTemplate, func(tok string) string {
		key := tok[1 : len(tok)-1]
		switch key {
		case "prefix":
			return s.Prefix
		case "suffix":
			return s.Suffix
		case "sequence", "padding":
			return padded
		case "brand":
			return args.BrandCode
		case "category":
			return args.CategoryCode
		case "item":
			return sanitizeItemName(args.ItemName)
		default:
			if v, ok := args.Custom[key]; ok {
				return v
			}
			return ""
		}
	})
}

// sanitizeItemName turns an item name into an SKU-safe uppercase token.
func sanitizeItemName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	token := b.String()
	if len(token) > 8 {
		token = token[:8]
	}
	return token
}
