// README: Dispatch constants and candidate selection for announcing ready orders.
package matching

import (
	"math/rand/v2"
	"time"

	"dispatch/internal/types"
)

const (
	// notifyInitialCount is the number of couriers to notify on the first dispatch.
	notifyInitialCount = 5
	// broadcastDelay is how long to wait after the initial dispatch before
	// announcing an unclaimed order to the wider radius.
	broadcastDelay = 30 * time.Second
	// broadcastExtraCount is how many additional couriers the broadcast notifies.
	broadcastExtraCount = 10
	// dispatchBatch caps the ready orders examined per tick.
	dispatchBatch = 100
)

// PickRandomCouriers returns up to n distinct couriers from pool in random
// order. pool is not modified.
func PickRandomCouriers(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	cp := make([]types.ID, len(pool))
	copy(cp, pool)
	rand.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if n > len(cp) {
		n = len(cp)
	}
	return cp[:n]
}
