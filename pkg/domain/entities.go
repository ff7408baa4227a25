// Package domain defines the records exchanged between the telecare client
// stores and the managed backend, together with the value types and
// boundary validation used before rows enter a local store.
package domain

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityType identifies the kind of record mirrored locally.
type EntityType string

// Entity identifiers used in errors, change events and persistence buckets.
const (
	EntityCartItem      EntityType = "cart_item"
	EntityProduct       EntityType = "product"
	EntityPaymentOrder  EntityType = "payment_order"
	EntityArticle       EntityType = "article"
	EntityPrescription  EntityType = "prescription"
	EntityClinicalOrder EntityType = "clinical_order"
	EntityPatient       EntityType = "patient"
	EntityAppointment   EntityType = "appointment"
)

// ID is a record identifier. Backend rows carry either integer or text
// primary keys; both decode into the same canonical string form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: expected string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id: non-integer numeric id %s", n.String())
	}
	*id = ID(n.String())
	return nil
}

// String returns the canonical identifier.
func (id ID) String() string { return string(id) }

// Compare orders ids numerically when both are integers and lexically
// otherwise. Integer ids sort before text ids.
func (id ID) Compare(other ID) int {
	a, aErr := strconv.ParseInt(string(id), 10, 64)
	b, bErr := strconv.ParseInt(string(other), 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(a, b)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(string(id), string(other))
}

// CartItem is one line in the shopping cart.
type CartItem struct {
	ProductSlug string `json:"productSlug"`
	Quantity    int    `json:"quantity"`
}

// Product is a marketplace product resolved by slug.
type Product struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Available  bool   `json:"available"`
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

// Payment states. Success and failed are terminal until the order is reset,
// except that a failed payment may be retried.
const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed:
		return true
	}
	return false
}

// OrderItem is a line captured on an order at checkout time.
type OrderItem struct {
	ProductSlug string `json:"productSlug"`
	Quantity    int    `json:"quantity"`
	UnitCents   int64  `json:"unit_cents,omitempty"`
}

// PaymentOrder is an order whose payment is tracked locally.
type PaymentOrder struct {
	ID             string        `json:"id"`
	Status         PaymentStatus `json:"status"`
	Channel        *string       `json:"channel"`
	Items          []OrderItem   `json:"items"`
	PlacedAt       time.Time     `json:"placedAt"`
	TotalCents     int64         `json:"total_cents,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// Clone returns a deep copy of the order.
func (o PaymentOrder) Clone() PaymentOrder {
	out := o
	if o.Channel != nil {
		ch := *o.Channel
		out.Channel = &ch
	}
	if o.Items != nil {
		out.Items = append([]OrderItem(nil), o.Items...)
	}
	return out
}

// ArticleStatus is the editorial state of an article.
type ArticleStatus string

// Editorial states.
const (
	ArticleDraft     ArticleStatus = "draft"
	ArticleScheduled ArticleStatus = "scheduled"
	ArticlePublished ArticleStatus = "published"
)

// Valid reports whether s is a known article status.
func (s ArticleStatus) Valid() bool {
	switch s {
	case ArticleDraft, ArticleScheduled, ArticlePublished:
		return true
	}
	return false
}

// Article is a health-content article edited locally.
type Article struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Category  string        `json:"category"`
	Status    ArticleStatus `json:"status"`
	Author    string        `json:"author"`
	Tags      []string      `json:"tags"`
	Body      string        `json:"body"`
	PublishAt *time.Time    `json:"publishAt,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of the article.
func (a Article) Clone() Article {
	out := a
	out.Tags = append([]string{}, a.Tags...)
	if a.PublishAt != nil {
		t := *a.PublishAt
		out.PublishAt = &t
	}
	return out
}

// PrescriptionStatus is the approval state of an e-prescription.
type PrescriptionStatus string

// Prescription workflow states.
const (
	PrescriptionPending   PrescriptionStatus = "pending"
	PrescriptionApproved  PrescriptionStatus = "approved"
	PrescriptionRejected  PrescriptionStatus = "rejected"
	PrescriptionDispensed PrescriptionStatus = "dispensed"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
)

// Valid reports whether s is a known prescription status.
func (s PrescriptionStatus) Valid() bool {
	switch s {
	case PrescriptionPending, PrescriptionApproved, PrescriptionRejected, PrescriptionDispensed, PrescriptionCancelled:
		return true
	}
	return false
}

// Prescription mirrors a backend e-prescription row.
type Prescription struct {
	ID         ID                 `json:"id"`
	PatientID  ID                 `json:"patient_id"`
	DoctorID   ID                 `json:"doctor_id"`
	Status     PrescriptionStatus `json:"status"`
	Medication string             `json:"medication,omitempty"`
	Dosage     string             `json:"dosage,omitempty"`
	Notes      string             `json:"notes,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// ClinicalOrderType classifies a clinical order.
type ClinicalOrderType string

// Clinical order types.
const (
	ClinicalOrderLab      ClinicalOrderType = "lab"
	ClinicalOrderImaging  ClinicalOrderType = "imaging"
	ClinicalOrderPharmacy ClinicalOrderType = "pharmacy"
	ClinicalOrderReferral ClinicalOrderType = "referral"
)

// Valid reports whether t is a known clinical order type.
func (t ClinicalOrderType) Valid() bool {
	switch t {
	case ClinicalOrderLab, ClinicalOrderImaging, ClinicalOrderPharmacy, ClinicalOrderReferral:
		return true
	}
	return false
}

// ClinicalOrderStatus is the fulfilment state of a clinical order.
type ClinicalOrderStatus string

// Clinical order states.
const (
	ClinicalOrderRequested  ClinicalOrderStatus = "requested"
	ClinicalOrderInProgress ClinicalOrderStatus = "in_progress"
	ClinicalOrderCompleted  ClinicalOrderStatus = "completed"
	ClinicalOrderCancelled  ClinicalOrderStatus = "cancelled"
)

// Valid reports whether s is a known clinical order status.
func (s ClinicalOrderStatus) Valid() bool {
	switch s {
	case ClinicalOrderRequested, ClinicalOrderInProgress, ClinicalOrderCompleted, ClinicalOrderCancelled:
		return true
	}
	return false
}

// ClinicalOrder mirrors a backend clinical order row.
type ClinicalOrder struct {
	ID          ID                  `json:"id"`
	PatientID   ID                  `json:"patient_id"`
	DoctorID    ID                  `json:"doctor_id"`
	Type        ClinicalOrderType   `json:"type"`
	Status      ClinicalOrderStatus `json:"status"`
	Description string              `json:"description,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Patient is a patient search result.
type Patient struct {
	ID        ID         `json:"id"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// Appointment is a doctor/patient consultation slot.
type Appointment struct {
	ID        ID        `json:"id"`
	PatientID ID        `json:"patient_id"`
	DoctorID  ID        `json:"doctor_id"`
	StartsAt  time.Time `json:"starts_at"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
}

// TriageMessage is one entry in a triage chat.
type TriageMessage struct {
	ID       ID              `json:"id"`
	Role     string          `json:"role"`
	Content  string          `json:"content"`
	SentAt   time.Time       `json:"sent_at"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// TriageSession is the current triage conversation for a patient.
type TriageSession struct {
	ID        ID              `json:"id"`
	PatientID ID              `json:"patient_id"`
	Status    string          `json:"status"`
	Messages  []TriageMessage `json:"messages"`
}
