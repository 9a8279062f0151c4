package refmodel

// CustomerID identifies a customer. The sentinel id 0 is reserved for
// rollover allocations that are not directed at any specific customer
// (spec.md §3 invariant: "the rollover allocation uses sentinel customer
// id 0").
type CustomerID int

// RolloverCustomer is the sentinel customer id used for harvest-to-
// inventory rollover allocations.
const RolloverCustomer CustomerID = 0

// Customer is a fill-goal-bearing demand source.
type Customer struct {
	ID       CustomerID
	FillGoal float64 // target fill percentage in [0,1]
}
