/**
 * @description
 * This file defines the subscription plan catalog record and the owner/provider
 * partition convention. Plans with ids up to MaxOwnerPlanID are equipment-capacity
 * (owner) plans; ids from MinProviderPlanID up are client-capacity (provider) plans.
 * The range split is a catalog convention inherited from the seeded data, not a
 * column on the record, so it lives here as named constants rather than inline
 * literals in query code.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Plan prices.
 */

package domain

import "github.com/shopspring/decimal"

const (
	// MaxOwnerPlanID is the highest plan id in the owner (equipment-capacity) range.
	MaxOwnerPlanID int64 = 3
	// MinProviderPlanID is the lowest plan id in the provider (client-capacity) range.
	MinProviderPlanID int64 = 4
)

const (
	UserTypeOwner    = "owner"
	UserTypeProvider = "provider"
)

// Plan is a subscription plan catalog entry. MaxEquipment is set for owner plans,
// MaxClients for provider plans; nil means unlimited.
type Plan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	BillingCycle string          `json:"billing_cycle"`
	MaxEquipment *int            `json:"max_equipment,omitempty"`
	MaxClients   *int            `json:"max_clients,omitempty"`
}

// IsOwnerPlan reports whether the plan belongs to the owner range of the catalog.
func (p *Plan) IsOwnerPlan() bool {
	return p.ID <= MaxOwnerPlanID
}

// IsProviderPlan reports whether the plan belongs to the provider range of the catalog.
func (p *Plan) IsProviderPlan() bool {
	return p.ID >= MinProviderPlanID
}

func intPtr(v int) *int { return &v }

// SeedPlans is the plan catalog shipped with the service. Ids 1-3 are owner plans,
// 4-6 are provider plans; the partition convention above depends on this layout.
func SeedPlans() []Plan {
	return []Plan{
		{ID: 1, Name: "Basic (Polar Bear)", Price: decimal.RequireFromString("18.99"), Currency: "USD", BillingCycle: "monthly", MaxEquipment: intPtr(6)},
		{ID: 2, Name: "Standard (Snow Bear)", Price: decimal.RequireFromString("35.13"), Currency: "USD", BillingCycle: "monthly", MaxEquipment: intPtr(12)},
		{ID: 3, Name: "Premium (Glacial Bear)", Price: decimal.RequireFromString("67.56"), Currency: "USD", BillingCycle: "monthly", MaxEquipment: intPtr(24)},
		{ID: 4, Name: "Small Company", Price: decimal.RequireFromString("40.51"), Currency: "USD", BillingCycle: "monthly", MaxClients: intPtr(10)},
		{ID: 5, Name: "Medium Company", Price: decimal.RequireFromString("81.08"), Currency: "USD", BillingCycle: "monthly", MaxClients: intPtr(30)},
		{ID: 6, Name: "Enterprise Premium", Price: decimal.RequireFromString("162.16"), Currency: "USD", BillingCycle: "monthly"},
	}
}
