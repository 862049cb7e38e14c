package saga

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Confirmation is the output of the confirmation generator.
type Confirmation struct {
	ID        string `json:"id"`
	Itinerary string `json:"itinerary"`
}

// Generator produces booking confirmations. Implementations stand in
// for the external reservation system; an error means the system is
// unreachable, not that the booking was rejected.
type Generator interface {
	Generate(ctx context.Context, req BookingRequest) (Confirmation, error)
}

// SimGenerator fabricates confirmations locally. Confirmation ids are
// derived from the trip identity, so regenerating for the same request
// yields the same id.
type SimGenerator struct {
	decider Decider
}

// NewSimGenerator creates a simulated generator. The decider controls
// simulated outages.
func NewSimGenerator(decider Decider) *SimGenerator {
	return &SimGenerator{decider: decider}
}

// Generate returns a confirmation for the request.
func (g *SimGenerator) Generate(ctx context.Context, req BookingRequest) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	if g.decider != nil && g.decider.ShouldFail("generator") {
		return Confirmation{}, fmt.Errorf("confirmation generator unavailable")
	}
	id := fmt.Sprintf("%s-%s", req.Resource.refCode(), refSuffix(req.TripID, string(req.Resource)))
	return Confirmation{
		ID:        id,
		Itinerary: itineraryFor(req, id),
	}, nil
}

func itineraryFor(req BookingRequest, id string) string {
	switch req.Resource {
	case ResourceFlight:
		return fmt.Sprintf("Flight to %s on %s, confirmation %s", req.Destination, req.TravelDate, id)
	case ResourceHotel:
		return fmt.Sprintf("Hotel in %s for %d nights, confirmation %s", req.Destination, req.Nights, id)
	case ResourceCar:
		return fmt.Sprintf("Car rental in %s for %d days, confirmation %s", req.Destination, req.Days, id)
	default:
		return fmt.Sprintf("Reservation in %s, confirmation %s", req.Destination, id)
	}
}

// refSuffix derives a short stable reference suffix from identity
// parts. The same parts always produce the same suffix, so re-issuing
// a reference after a replayed attempt cannot mint a second one.
func refSuffix(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// refValue derives a stable value in [min, max] from identity parts.
func refValue(min, max float64, parts ...string) float64 {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	n := uint64(0)
	for _, b := range sum[:8] {
		n = n<<8 | uint64(b)
	}
	span := max - min
	return min + float64(n%uint64(span*100))/100
}
