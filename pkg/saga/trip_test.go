package saga

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wayfare/wayfare/pkg/hub"
	"github.com/wayfare/wayfare/pkg/logger"
)

// scriptDecider fails exactly the scripted operations and counts every
// roll, so tests can assert which activities actually executed.
type scriptDecider struct {
	mu    sync.Mutex
	fail  map[string]bool
	rolls map[string]int
}

func script(failures ...string) *scriptDecider {
	fail := make(map[string]bool, len(failures))
	for _, op := range failures {
		fail[op] = true
	}
	return &scriptDecider{fail: fail, rolls: make(map[string]int)}
}

func (d *scriptDecider) ShouldFail(operation string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolls[operation]++
	return d.fail[operation]
}

func (d *scriptDecider) rollCount(operation string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rolls[operation]
}

type sagaHarness struct {
	client *hub.Client
	store  hub.Store
}

func newSagaHarness(t *testing.T, decider Decider) *sagaHarness {
	t.Helper()
	store := hub.NewMemoryStore()
	queue := hub.NewChannelQueue(16)
	registry := hub.NewRegistry()
	log := logger.Nop()

	acts := NewActivities(NewSimGenerator(decider), decider, 0, log)
	if err := Register(registry, acts); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	worker := hub.NewWorker(store, queue, registry, log, hub.WorkerConfig{Workers: 1})
	worker.Start(context.Background())
	t.Cleanup(func() {
		worker.Stop()
		queue.Close()
	})

	return &sagaHarness{
		client: hub.NewClient(store, queue, registry, log, 5*time.Millisecond),
		store:  store,
	}
}

func (h *sagaHarness) runTrip(t *testing.T, req TripRequest) TripResult {
	t.Helper()
	ctx := context.Background()
	id, err := h.client.Schedule(ctx, OrchestrationTrip, req)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	instance, err := h.client.Await(ctx, id, 5*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if instance.Status != hub.StatusCompleted {
		t.Fatalf("trip orchestration did not complete: %s (%s)", instance.Status, instance.FailureReason)
	}
	var result TripResult
	if err := json.Unmarshal(instance.Output, &result); err != nil {
		t.Fatalf("decoding trip result failed: %v", err)
	}
	return result
}

func TestTripAllResourcesCommit(t *testing.T) {
	decider := script()
	h := newSagaHarness(t, decider)

	result := h.runTrip(t, TripRequest{Destination: "Lisbon", Nights: 3, Days: 4, TravelDate: "2026-10-01"})

	if result.Status != TripSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.FailureReason)
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}
	if len(result.Compensations) != 0 {
		t.Errorf("successful trip should have no compensations, got %d", len(result.Compensations))
	}

	wantOrder := []Resource{ResourceFlight, ResourceHotel, ResourceCar}
	wantPayPrefix := map[Resource]string{
		ResourceFlight: "PAY-FL-",
		ResourceHotel:  "PAY-HT-",
		ResourceCar:    "PAY-CR-",
	}
	var total float64
	for i, outcome := range result.Outcomes {
		if outcome.Resource != wantOrder[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, wantOrder[i], outcome.Resource)
		}
		if outcome.Status != OutcomeCommitted {
			t.Errorf("%s: expected committed, got %s", outcome.Resource, outcome.Status)
		}
		if outcome.BookingConfirmation == "" {
			t.Errorf("%s: missing booking confirmation", outcome.Resource)
		}
		if !strings.HasPrefix(outcome.PaymentConfirmation, wantPayPrefix[outcome.Resource]) {
			t.Errorf("%s: unexpected payment ref %q", outcome.Resource, outcome.PaymentConfirmation)
		}
		if outcome.Amount <= 0 {
			t.Errorf("%s: non-positive amount %f", outcome.Resource, outcome.Amount)
		}
		total += outcome.Amount
	}
	if result.TotalAmount != total {
		t.Errorf("total %f does not match outcome sum %f", result.TotalAmount, total)
	}

	for _, op := range []string{"cancel_flight", "cancel_hotel", "cancel_car"} {
		if decider.rollCount(op) != 0 {
			t.Errorf("%s executed during a successful trip", op)
		}
	}
}

func TestTripBookingRejectionRollsBackCommittedPrefix(t *testing.T) {
	decider := script("book_hotel")
	h := newSagaHarness(t, decider)

	result := h.runTrip(t, TripRequest{Destination: "Kyoto"})

	if result.Status != TripFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes (car never attempted), got %d", len(result.Outcomes))
	}
	if result.Outcomes[0].Status != OutcomeCommitted || result.Outcomes[1].Status != OutcomeFailed {
		t.Errorf("unexpected outcome statuses: %s, %s", result.Outcomes[0].Status, result.Outcomes[1].Status)
	}
	if !strings.Contains(result.FailureReason, "hotel") {
		t.Errorf("failure reason does not name hotel: %q", result.FailureReason)
	}

	if len(result.Compensations) != 1 {
		t.Fatalf("expected 1 compensation, got %d", len(result.Compensations))
	}
	comp := result.Compensations[0]
	if comp.Resource != ResourceFlight || !comp.Succeeded {
		t.Errorf("unexpected compensation %+v", comp)
	}
	if !strings.HasPrefix(comp.CancellationRef, "CXL-FL-") {
		t.Errorf("unexpected cancellation ref %q", comp.CancellationRef)
	}

	if decider.rollCount("book_car") != 0 {
		t.Error("car booking attempted after hotel rejection")
	}
	if decider.rollCount("cancel_hotel") != 0 {
		t.Error("rejected hotel booking was cancelled despite holding nothing")
	}
}

func TestTripPaymentDeclineCompensatesInReverseOrder(t *testing.T) {
	decider := script("pay_car")
	h := newSagaHarness(t, decider)

	result := h.runTrip(t, TripRequest{Destination: "Oslo"})

	if result.Status != TripFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}

	car := result.Outcomes[2]
	if car.Status != OutcomeCompensated {
		t.Fatalf("expected car compensated, got %s", car.Status)
	}
	if !strings.HasPrefix(car.CancellationRef, "CXL-CR-") {
		t.Errorf("unexpected car cancellation ref %q", car.CancellationRef)
	}

	// Committed prefix unwinds newest first: hotel, then flight.
	if len(result.Compensations) != 2 {
		t.Fatalf("expected 2 compensations, got %d", len(result.Compensations))
	}
	if result.Compensations[0].Resource != ResourceHotel || result.Compensations[1].Resource != ResourceFlight {
		t.Errorf("compensations out of order: %s, %s",
			result.Compensations[0].Resource, result.Compensations[1].Resource)
	}

	// The car's own rollback plus the two trip-level ones.
	if decider.rollCount("cancel_car") != 1 {
		t.Errorf("expected 1 car cancellation, got %d", decider.rollCount("cancel_car"))
	}
}

func TestTripFirstBookingRejectedHasNoSideEffects(t *testing.T) {
	decider := script("book_flight")
	h := newSagaHarness(t, decider)

	result := h.runTrip(t, TripRequest{Destination: "Reykjavik"})

	if result.Status != TripFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != OutcomeFailed {
		t.Fatalf("expected single failed outcome, got %+v", result.Outcomes)
	}
	if len(result.Compensations) != 0 {
		t.Errorf("nothing was committed, yet %d compensations ran", len(result.Compensations))
	}
	if result.TotalAmount != 0 {
		t.Errorf("expected zero total, got %f", result.TotalAmount)
	}
	for _, op := range []string{"pay_flight", "book_hotel", "book_car"} {
		if decider.rollCount(op) != 0 {
			t.Errorf("%s executed after flight rejection", op)
		}
	}
}

func TestTripFailedCancellationSurfacesAsUncompensated(t *testing.T) {
	decider := script("pay_car", "cancel_flight")
	h := newSagaHarness(t, decider)

	result := h.runTrip(t, TripRequest{Destination: "Sydney"})

	if result.Status != TripFailedUncompensated {
		t.Fatalf("expected failed-uncompensated, got %s", result.Status)
	}

	// Both compensations still ran; the flight one reports failure.
	if len(result.Compensations) != 2 {
		t.Fatalf("expected 2 compensations, got %d", len(result.Compensations))
	}
	hotel, flight := result.Compensations[0], result.Compensations[1]
	if hotel.Resource != ResourceHotel || !hotel.Succeeded {
		t.Errorf("hotel compensation should succeed: %+v", hotel)
	}
	if flight.Resource != ResourceFlight || flight.Succeeded {
		t.Errorf("flight compensation should report failure: %+v", flight)
	}
	if flight.Reason == "" {
		t.Error("failed compensation carries no reason")
	}
}

func TestTripSubsetOfResources(t *testing.T) {
	decider := script()
	h := newSagaHarness(t, decider)

	result := h.runTrip(t, TripRequest{
		Destination: "Porto",
		Resources:   []Resource{ResourceHotel},
	})

	if result.Status != TripSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Resource != ResourceHotel {
		t.Fatalf("expected single hotel outcome, got %+v", result.Outcomes)
	}
	for _, op := range []string{"book_flight", "book_car"} {
		if decider.rollCount(op) != 0 {
			t.Errorf("%s executed for a hotel-only trip", op)
		}
	}
}

func TestTripRejectsUnknownResource(t *testing.T) {
	h := newSagaHarness(t, script())

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, OrchestrationTrip, TripRequest{
		Destination: "Lima",
		Resources:   []Resource{"submarine"},
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	instance, err := h.client.Await(ctx, id, 5*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if instance.Status != hub.StatusFailed {
		t.Fatalf("expected failed instance, got %s", instance.Status)
	}
	if !strings.Contains(instance.FailureReason, "submarine") {
		t.Errorf("failure reason does not name the bad resource: %q", instance.FailureReason)
	}
}

func TestTripGeneratorOutageFailsInstance(t *testing.T) {
	// Generator outage is infrastructure, not a business rejection:
	// the orchestration itself fails instead of producing a TripResult.
	h := newSagaHarness(t, script("generator"))

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, OrchestrationTrip, TripRequest{Destination: "Quito"})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	instance, err := h.client.Await(ctx, id, 5*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if instance.Status != hub.StatusFailed {
		t.Fatalf("expected failed instance, got %s", instance.Status)
	}
	if !strings.Contains(instance.FailureReason, "confirmation generator unavailable") {
		t.Errorf("unexpected failure reason: %q", instance.FailureReason)
	}
}
