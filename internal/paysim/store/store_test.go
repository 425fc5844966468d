package store

import (
	"sync"
	"testing"
	"time"
)

func request() CreateRequest {
	return CreateRequest{
		Amount:       Amount{Value: "5000.00", Currency: "RUB"},
		Confirmation: Confirmation{Type: "redirect", ReturnURL: "https://example.test"},
		Capture:      true,
	}
}

func TestCreateDeduplicatesConcurrentKeys(t *testing.T) {
	s := New()
	ids := make(chan string, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _ := s.Create("shared", request())
			ids <- p.ID
		}()
	}
	wg.Wait()
	close(ids)

	if n := len(s.Payments.Snapshot()); n != 1 {
		t.Fatalf("expected 1 payment, got %d", n)
	}
	first := <-ids
	for id := range ids {
		if id != first {
			t.Errorf("expected every caller to get %s, got %s", first, id)
		}
	}
}

func TestCreateUsesSimulatedClock(t *testing.T) {
	s := New()
	s.Clock.Advance(72 * time.Hour)
	p, replayed := s.Create("", request())
	if replayed {
		t.Error("expected a fresh payment without a key")
	}
	if time.Until(p.CreatedAt) < 71*time.Hour {
		t.Errorf("expected created_at in the simulated future, got %s", p.CreatedAt)
	}
}

func TestSucceedWithoutCapture(t *testing.T) {
	s := New()
	req := request()
	req.Capture = false
	p, _ := s.Create("k", req)

	got, err := s.Succeed(p.ID)
	if err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if got.Status != StatusWaitingForCapture || !got.Paid || got.CapturedAt != nil {
		t.Errorf("unexpected payment: %+v", got)
	}
	if got.Final() {
		t.Error("waiting_for_capture must not be final")
	}
	if _, err := s.Cancel("k"); err != nil {
		t.Errorf("expected cancel from waiting_for_capture, got %v", err)
	}
	if _, err := s.Succeed("k"); err != ErrFinal {
		t.Errorf("expected ErrFinal, got %v", err)
	}
}
