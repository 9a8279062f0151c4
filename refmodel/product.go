package refmodel

// ProductID identifies a sellable, packed product.
type ProductID int

// ProductionPriority orders retail (1-4) ahead of food-service (5).
// Priority 6 exists in the dimension but is out of scope for allocation.
type ProductionPriority int

const (
	PriorityRetail1     ProductionPriority = 1
	PriorityRetail2     ProductionPriority = 2
	PriorityRetail3     ProductionPriority = 3
	PriorityRetail4     ProductionPriority = 4
	PriorityFoodService ProductionPriority = 5
	PriorityOutOfScope  ProductionPriority = 6
)

// IsFoodService reports whether p is the lead-time-sensitive food-service
// priority tier.
func (p ProductionPriority) IsFoodService() bool { return p == PriorityFoodService }

// Product is a packed, sellable SKU.
type Product struct {
	ID                   ProductID
	CropID               CropID
	NetWeightGrams       float64
	IsWhole              bool // whole vs. loose/cut product
	ShelfLifeGuarantee   int  // days of guaranteed remaining shelf life at delivery
	TotalShelfLife       int  // days from pack to expiry
	Priority             ProductionPriority
	LeadTimeDays         int
	CaseEquivalent       float64 // case-equivalent multiplier for pallet math
	CasesPerPallet       float64
}

// Pallets converts a product quantity into fractional pallets (§4.5 truck
// capacity, §3 truck invariant).
func (p Product) Pallets(qty int) float64 {
	if p.CasesPerPallet == 0 {
		return 0
	}
	return float64(qty) * p.CaseEquivalent / p.CasesPerPallet
}
