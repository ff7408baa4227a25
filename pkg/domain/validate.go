package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError reports a record that failed boundary validation.
type ValidationError struct {
	Entity EntityType
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Reason)
}

// Validate checks a cart line.
func (c CartItem) Validate() error {
	if strings.TrimSpace(c.ProductSlug) == "" {
		return ValidationError{Entity: EntityCartItem, Field: "productSlug", Reason: "required"}
	}
	if c.Quantity <= 0 {
		return ValidationError{Entity: EntityCartItem, Field: "quantity", Reason: "must be positive"}
	}
	return nil
}

// Validate checks a product row.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Slug) == "" {
		return ValidationError{Entity: EntityProduct, Field: "slug", Reason: "required"}
	}
	if p.PriceCents < 0 {
		return ValidationError{Entity: EntityProduct, Field: "price_cents", Reason: "must not be negative"}
	}
	return nil
}

// Validate checks an order returned by the backend.
func (o PaymentOrder) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return ValidationError{Entity: EntityPaymentOrder, Field: "id", Reason: "required"}
	}
	if !o.Status.Valid() {
		return ValidationError{Entity: EntityPaymentOrder, Field: "status", Reason: fmt.Sprintf("unknown status %q", o.Status)}
	}
	return nil
}

// Validate checks an article.
func (a Article) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ValidationError{Entity: EntityArticle, Field: "id", Reason: "required"}
	}
	if !a.Status.Valid() {
		return ValidationError{Entity: EntityArticle, Field: "status", Reason: fmt.Sprintf("unknown status %q", a.Status)}
	}
	if a.Status == ArticleScheduled && a.PublishAt == nil {
		return ValidationError{Entity: EntityArticle, Field: "publishAt", Reason: "required when scheduled"}
	}
	return nil
}

// Validate checks a prescription row.
func (p Prescription) Validate() error {
	if p.ID == "" {
		return ValidationError{Entity: EntityPrescription, Field: "id", Reason: "required"}
	}
	if !p.Status.Valid() {
		return ValidationError{Entity: EntityPrescription, Field: "status", Reason: fmt.Sprintf("unknown status %q", p.Status)}
	}
	return nil
}

// Validate checks a clinical order row.
func (o ClinicalOrder) Validate() error {
	if o.ID == "" {
		return ValidationError{Entity: EntityClinicalOrder, Field: "id", Reason: "required"}
	}
	if o.Type != "" && !o.Type.Valid() {
		return ValidationError{Entity: EntityClinicalOrder, Field: "type", Reason: fmt.Sprintf("unknown type %q", o.Type)}
	}
	if !o.Status.Valid() {
		return ValidationError{Entity: EntityClinicalOrder, Field: "status", Reason: fmt.Sprintf("unknown status %q", o.Status)}
	}
	return nil
}

// DecodePrescription decodes and validates a raw prescription row.
func DecodePrescription(raw json.RawMessage) (Prescription, error) {
	var p Prescription
	if err := json.Unmarshal(raw, &p); err != nil {
		return Prescription{}, fmt.Errorf("decode prescription: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Prescription{}, err
	}
	return p, nil
}

// DecodeClinicalOrder decodes and validates a raw clinical order row.
func DecodeClinicalOrder(raw json.RawMessage) (ClinicalOrder, error) {
	var o ClinicalOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return ClinicalOrder{}, fmt.Errorf("decode clinical order: %w", err)
	}
	if err := o.Validate(); err != nil {
		return ClinicalOrder{}, err
	}
	return o, nil
}
