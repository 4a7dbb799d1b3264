package models

import (
	"testing"
	"time"
)

func TestDeliveryStatusTransitions(t *testing.T) {
	tests := []struct {
		from DeliveryStatus
		to   DeliveryStatus
		want bool
	}{
		{DeliveryPending, DeliverySent, true},
		{DeliveryPending, DeliveryFailed, true},
		{DeliveryPending, DeliveryDelivered, false},
		{DeliverySent, DeliveryDelivered, true},
		{DeliverySent, DeliveryFailed, false},
		{DeliverySent, DeliveryPending, false},
		{DeliveryFailed, DeliverySent, false},
		{DeliveryFailed, DeliveryPending, false},
		{DeliveryDelivered, DeliveryFailed, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMarkSentClearsError(t *testing.T) {
	reason := "temporary"
	r := &DeliveryRecord{Status: DeliveryPending, Error: &reason}

	if !r.MarkSent() {
		t.Fatal("MarkSent from pending should succeed")
	}
	if r.Status != DeliverySent {
		t.Errorf("Status = %s", r.Status)
	}
	if r.Error != nil {
		t.Error("MarkSent should clear a stale error")
	}
}

func TestMarkFailedIsFinal(t *testing.T) {
	r := &DeliveryRecord{Status: DeliveryPending}

	if !r.MarkFailed("number not on whatsapp") {
		t.Fatal("MarkFailed from pending should succeed")
	}
	if r.Error == nil || *r.Error != "number not on whatsapp" {
		t.Errorf("Error = %v", r.Error)
	}

	if r.MarkSent() {
		t.Error("a failed record must not move to sent")
	}
	if r.MarkDelivered(time.Now()) {
		t.Error("a failed record must not move to delivered")
	}
}

func TestMarkDeliveredOnlyAfterSent(t *testing.T) {
	r := &DeliveryRecord{Status: DeliveryPending}

	if r.MarkDelivered(time.Now()) {
		t.Error("delivered before sent must be rejected")
	}

	r.MarkSent()
	at := time.Now()
	if !r.MarkDelivered(at) {
		t.Fatal("MarkDelivered after sent should succeed")
	}
	if r.DeliveredAt == nil || !r.DeliveredAt.Equal(at) {
		t.Errorf("DeliveredAt = %v", r.DeliveredAt)
	}

	if r.MarkFailed("late") {
		t.Error("a delivered record must not move to failed")
	}
}
