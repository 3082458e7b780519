package triage

import (
	"context"

	"github.com/triageai/backend/internal/models"
	"github.com/triageai/backend/internal/store"
)

// CapacityTracker derives capacity snapshots from the current staff and
// resource records. Nothing is cached between reads; the queue engine loads
// one view per recompute cycle and scopes every patient against it.
type CapacityTracker struct {
	st store.Store
}

func NewCapacityTracker(st store.Store) *CapacityTracker {
	return &CapacityTracker{st: st}
}

// CapacityView is a point-in-time copy of the staff and resource records.
// Every patient scored within a cycle is scoped against the same view, so a
// capacity write landing mid-cycle cannot give two patients different pools.
type CapacityView struct {
	staff     []models.StaffMember
	resources []models.Resource
}

// Load reads the staff and resource records once and freezes them into a
// view. On a store read failure it returns the error; the caller decides
// whether to fall back to neutral ratios.
func (t *CapacityTracker) Load(ctx context.Context) (*CapacityView, error) {
	staff, err := t.st.ListStaff(ctx, store.StaffFilter{})
	if err != nil {
		return nil, err
	}
	resources, err := t.st.ListResources(ctx, store.ResourceFilter{})
	if err != nil {
		return nil, err
	}
	return &CapacityView{staff: staff, resources: resources}, nil
}

// Snapshot scopes the view to the given resource types and staff specialties;
// empty slices mean system-wide.
func (v *CapacityView) Snapshot(resourceTypes, specialties []string) CapacitySnapshot {
	return CapacitySnapshot{
		StaffAvailableRatio:    staffRatio(v.staff, specialties),
		ResourceAvailableRatio: resourceRatio(v.resources, resourceTypes),
	}
}

// Snapshot loads a fresh view and scopes it in one step, for one-off callers
// like the per-patient calculate endpoint.
//
// On a store read failure it returns the neutral snapshot together with the
// error so the caller can log and proceed: a transient capacity-read failure
// must never block a scoring request.
func (t *CapacityTracker) Snapshot(ctx context.Context, resourceTypes, specialties []string) (CapacitySnapshot, error) {
	view, err := t.Load(ctx)
	if err != nil {
		return NeutralCapacity(), err
	}
	return view.Snapshot(resourceTypes, specialties), nil
}

// staffRatio is available staff over total staff among the relevant
// specialties, clamped to [0,1]; 1 when no staff match (no constraint means
// no scarcity signal).
func staffRatio(staff []models.StaffMember, specialties []string) float64 {
	want := toSet(specialties)
	total, available := 0, 0
	for _, s := range staff {
		if want != nil {
			if _, ok := want[s.Specialty]; !ok {
				continue
			}
		}
		total++
		if s.Status == models.StaffAvailable {
			available++
		}
	}
	if total == 0 {
		return 1
	}
	return clamp01(float64(available) / float64(total))
}

// resourceRatio is the capacity-weighted availability across the relevant
// resource types: sum of available capacity units over sum of capacity
// units. A resource with capacity 4 and 2 available contributes 0.5 weighted
// by its 4 units, independent of how many sibling resources exist.
func resourceRatio(resources []models.Resource, types []string) float64 {
	want := toSet(types)
	totalUnits, availableUnits := 0, 0
	for _, r := range resources {
		if want != nil {
			if _, ok := want[r.Type]; !ok {
				continue
			}
		}
		totalUnits += r.Capacity
		availableUnits += r.AvailableCapacity
	}
	if totalUnits == 0 {
		return 1
	}
	return clamp01(float64(availableUnits) / float64(totalUnits))
}

func toSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[s] = struct{}{}
	}
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
