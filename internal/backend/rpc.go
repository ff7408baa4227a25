package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telecare/pkg/domain"
)

// Shipping is the delivery block of an order.
type Shipping struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// CreateOrderRequest turns cart lines into an order.
type CreateOrderRequest struct {
	PatientID domain.ID         `json:"patient_id"`
	Items     []domain.CartItem `json:"items"`
	Shipping  Shipping          `json:"shipping"`
	Notes     string            `json:"notes,omitempty"`
	// IdempotencyKey is sent as the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// CreateOrder places an order for the given lines.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.PaymentOrder, error) {
	var headers map[string]string
	if req.IdempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": req.IdempotencyKey}
	}
	var order domain.PaymentOrder
	if err := c.call(ctx, "create_order", http.MethodPost, "/rpc/create_order_from_cart", nil, req, headers, &order); err != nil {
		return domain.PaymentOrder{}, err
	}
	if order.Status == "" {
		order.Status = domain.PaymentPending
	}
	if order.IdempotencyKey == "" {
		order.IdempotencyKey = req.IdempotencyKey
	}
	if err := order.Validate(); err != nil {
		return domain.PaymentOrder{}, fmt.Errorf("backend create_order: %w", err)
	}
	return order, nil
}

// FetchProduct resolves a marketplace product by slug.
func (c *Client) FetchProduct(ctx context.Context, slug string) (domain.Product, error) {
	var p domain.Product
	if err := c.call(ctx, "fetch_product", http.MethodGet, "/marketplace/products/"+strings.TrimSpace(slug), nil, nil, nil, &p); err != nil {
		return domain.Product{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, fmt.Errorf("backend fetch_product: %w", err)
	}
	return p, nil
}

type approveRequest struct {
	PrescriptionID domain.ID `json:"prescription_id"`
	Notes          string    `json:"notes,omitempty"`
}

// ApprovePrescription approves a pending prescription and returns the row.
func (c *Client) ApprovePrescription(ctx context.Context, id domain.ID, notes string) (domain.Prescription, error) {
	var p domain.Prescription
	if err := c.call(ctx, "approve_prescription", http.MethodPost, "/rpc/approve_prescription", nil, approveRequest{PrescriptionID: id, Notes: notes}, nil, &p); err != nil {
		return domain.Prescription{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Prescription{}, fmt.Errorf("backend approve_prescription: %w", err)
	}
	return p, nil
}

// FetchPrescriptions lists a patient's prescriptions. Invalid rows are
// dropped and logged.
func (c *Client) FetchPrescriptions(ctx context.Context, patientID domain.ID) ([]domain.Prescription, error) {
	var rows []domain.Prescription
	q := url.Values{"patient_id": {patientID.String()}}
	if err := c.call(ctx, "fetch_prescriptions", http.MethodGet, "/prescriptions", q, nil, nil, &rows); err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, p := range rows {
		if err := p.Validate(); err != nil {
			c.logger.Warn("dropping invalid prescription row", "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// FetchTriageSession returns the patient's current triage session.
func (c *Client) FetchTriageSession(ctx context.Context, patientID domain.ID) (domain.TriageSession, error) {
	var s domain.TriageSession
	q := url.Values{"patient_id": {patientID.String()}}
	if err := c.call(ctx, "fetch_triage_session", http.MethodGet, "/triage/sessions/current", q, nil, nil, &s); err != nil {
		return domain.TriageSession{}, err
	}
	if s.Messages == nil {
		s.Messages = []domain.TriageMessage{}
	}
	return s, nil
}

// SearchPatients finds patients by name or email fragment.
func (c *Client) SearchPatients(ctx context.Context, query string, limit int) ([]domain.Patient, error) {
	q := url.Values{"q": {strings.TrimSpace(query)}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var rows []domain.Patient
	if err := c.call(ctx, "search_patients", http.MethodGet, "/patients", q, nil, nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Patient{}
	}
	return rows, nil
}

// FetchAppointment returns one appointment.
func (c *Client) FetchAppointment(ctx context.Context, id domain.ID) (domain.Appointment, error) {
	var a domain.Appointment
	if err := c.call(ctx, "fetch_appointment", http.MethodGet, "/appointments/"+id.String(), nil, nil, nil, &a); err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

// CreateAppointmentRequest books a consultation.
type CreateAppointmentRequest struct {
	PatientID domain.ID `json:"patient_id"`
	DoctorID  domain.ID `json:"doctor_id"`
	StartsAt  time.Time `json:"starts_at"`
	Reason    string    `json:"reason,omitempty"`
}

// CreateAppointment books an appointment through the backend procedure.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (domain.Appointment, error) {
	var a domain.Appointment
	if err := c.call(ctx, "create_appointment", http.MethodPost, "/rpc/create_appointment", nil, req, nil, &a); err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}
