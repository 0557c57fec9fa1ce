package assoc

import (
	"math"

	"golang.org/x/sync/semaphore"
)

// unboundedWeight stands in for "no limit" when a configured ops-window
// value is 0; semaphore.Weighted requires a finite capacity, so this is
// simply large enough that no realistic workload exhausts it.
const unboundedWeight = math.MaxInt32

func (a *Association) initOpsWindow() {
	weight := int64(a.maxOpsInvoked)
	if a.maxOpsInvoked == 0 {
		weight = unboundedWeight
	}
	a.invokedSem = semaphore.NewWeighted(weight)
}

func isPendingStatus(status uint16) bool {
	return status >= 0xFF00 && status <= 0xFF0F
}

func (a *Association) processingOverLimit() bool {
	if a.maxOpsPerformed == 0 {
		return false
	}
	return uint32(len(a.processing)) >= a.maxOpsPerformed
}
