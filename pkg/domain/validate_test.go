package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	var row struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":42,"b":"rx-9","c":null}`), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if row.A != "42" || row.B != "rx-9" || row.C != "" {
		t.Fatalf("unexpected ids: %+v", row)
	}
	if err := json.Unmarshal([]byte(`{"a":4.2}`), &row); err == nil {
		t.Fatalf("expected fractional id to be rejected")
	}
	if err := json.Unmarshal([]byte(`{"a":true}`), &row); err == nil {
		t.Fatalf("expected boolean id to be rejected")
	}
}

func TestDecodePrescription(t *testing.T) {
	p, err := DecodePrescription(json.RawMessage(`{"id":42,"patient_id":"p1","doctor_id":7,"status":"approved"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != "42" || p.DoctorID != "7" || p.Status != PrescriptionApproved {
		t.Fatalf("unexpected prescription %+v", p)
	}

	_, err = DecodePrescription(json.RawMessage(`{"id":1,"status":"teleported"}`))
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}
	if _, err := DecodePrescription(json.RawMessage(`{"status":"approved"}`)); err == nil {
		t.Fatalf("expected missing id error")
	}
	if _, err := DecodePrescription(json.RawMessage(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDecodeClinicalOrder(t *testing.T) {
	o, err := DecodeClinicalOrder(json.RawMessage(`{"id":"co-1","type":"lab","status":"requested"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.Type != ClinicalOrderLab {
		t.Fatalf("unexpected type %s", o.Type)
	}
	if _, err := DecodeClinicalOrder(json.RawMessage(`{"id":"co-1","type":"xray","status":"requested"}`)); err == nil {
		t.Fatalf("expected type validation error")
	}
}

func TestArticleValidate(t *testing.T) {
	a := Article{ID: "a1", Status: ArticleScheduled}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected scheduled article without publishAt to fail")
	}
	at := time.Now()
	a.PublishAt = &at
	if err := a.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	clone := a.Clone()
	*clone.PublishAt = at.Add(time.Hour)
	if !a.PublishAt.Equal(at) {
		t.Fatalf("clone shares publishAt pointer")
	}
}

func TestCartItemAndOrderValidate(t *testing.T) {
	if err := (CartItem{ProductSlug: "a", Quantity: 0}).Validate(); err == nil {
		t.Fatalf("expected zero quantity to fail")
	}
	if err := (PaymentOrder{ID: "o1", Status: "refunded"}).Validate(); err == nil {
		t.Fatalf("expected unknown payment status to fail")
	}
	ch := "card"
	o := PaymentOrder{ID: "o1", Status: PaymentPending, Channel: &ch, Items: []OrderItem{{ProductSlug: "a", Quantity: 1}}}
	c := o.Clone()
	*c.Channel = "wallet"
	c.Items[0].Quantity = 9
	if *o.Channel != "card" || o.Items[0].Quantity != 1 {
		t.Fatalf("clone aliased source order")
	}
}

func TestIDCompare(t *testing.T) {
	cases := []struct {
		a, b ID
		want int
	}{
		{"9", "10", -1},
		{"100", "20", 1},
		{"7", "7", 0},
		{"-3", "2", -1},
		{"42", "rx-1", -1},
		{"rx-2", "10", 1},
		{"rx-10", "rx-9", -1},
	}
	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
