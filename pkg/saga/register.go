package saga

import (
	"fmt"

	"github.com/wayfare/wayfare/pkg/hub"
)

// Register installs the travel orchestrations and their activities.
// All four orchestrations are schedulable directly: the trip saga and
// each resource sub-saga on its own.
func Register(reg *hub.Registry, acts *Activities) error {
	if err := reg.RegisterOrchestrator(OrchestrationTrip, tripOrchestrator); err != nil {
		return fmt.Errorf("register trip orchestration: %w", err)
	}
	for _, res := range defaultResources {
		res := res
		if err := reg.RegisterOrchestrator(orchestrationFor(res), bookingOrchestrator(res)); err != nil {
			return fmt.Errorf("register %s orchestration: %w", res, err)
		}
		if err := reg.RegisterActivity(bookActivity(res), acts.book(res)); err != nil {
			return fmt.Errorf("register %s activity: %w", bookActivity(res), err)
		}
		if err := reg.RegisterActivity(payActivity(res), acts.pay(res)); err != nil {
			return fmt.Errorf("register %s activity: %w", payActivity(res), err)
		}
		if err := reg.RegisterActivity(cancelActivity(res), acts.cancel(res)); err != nil {
			return fmt.Errorf("register %s activity: %w", cancelActivity(res), err)
		}
	}
	return nil
}

// Orchestrations lists the schedulable orchestration names.
func Orchestrations() []string {
	return []string{OrchestrationTrip, OrchestrationFlight, OrchestrationHotel, OrchestrationCar}
}
