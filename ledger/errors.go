/*
errors.go - Centralized error types for the ledger package

Grounded on generic/errors.go: sentinel errors for the conditions the
rest of the engine checks with errors.Is, plus structured error types
that carry enough context for the driver to log without guessing.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/greenrow/allocator/refmodel"
)

var (
	// ErrKeySealed is matched (via SealedKeyError) when an allocation is
	// attempted against a harvest key that Harvest.Seal has sealed. Seal is
	// called on a full pack-out; reaching allocated == starting through
	// ordinary allocations does not seal a key by itself.
	ErrKeySealed = errors.New("harvest key sealed")

	// ErrNoHarvest is returned when a (date, crop, facility) key has no
	// forecast at all (spec.md §4.4 tier-1 pre-step: "if there is no
	// harvest at all for the key, log and skip").
	ErrNoHarvest = errors.New("no harvest for key")
)

// HarvestKey is the (date, crop, region) composite key the harvest
// ledger is indexed by (spec.md §9: "replace stringly-typed composite
// keys ... with a value type and use it directly as map key").
type HarvestKey struct {
	Date   refmodel.Date
	Crop   refmodel.CropID
	Region refmodel.FacilityID
}

func (k HarvestKey) String() string {
	return fmt.Sprintf("%s/%d/%d", k.Date, k.Crop, k.Region)
}

// SealedKeyError reports an attempted allocation against an already-
// sealed harvest key.
type SealedKeyError struct {
	Key HarvestKey
}

func (e *SealedKeyError) Error() string {
	return fmt.Sprintf("harvest key %s is sealed: no further allocations permitted", e.Key)
}

func (e *SealedKeyError) Unwrap() error { return ErrKeySealed }
