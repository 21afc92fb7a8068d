package tilestore

import (
	"errors"
	"fmt"
)

// ErrOutOfDeviceMemory is returned when allocating a pile would exceed the
// store's device-memory budget. It is distinct from ordinary device errors
// so callers can surface it as a capacity problem rather than a fault.
var ErrOutOfDeviceMemory = errors.New("tilestore: out of device memory")

// DefaultMemoryBudgetMB is the default pile-memory budget (512 MB, four
// piles at the default tile and pile sizes).
const DefaultMemoryBudgetMB = 512

// MemoryStats contains pile-memory usage statistics.
type MemoryStats struct {
	// TotalBytes is the total memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the memory held by pile textures in bytes.
	UsedBytes uint64

	// AvailableBytes is the remaining memory budget.
	AvailableBytes uint64

	// PileCount is the number of allocation piles.
	PileCount int

	// TileCount is the number of allocated tiles.
	TileCount int

	// FreeSlots is the number of allocated-but-unoccupied tile slots.
	FreeSlots int

	// Utilization is the fraction of budget used (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Tiles[%.1f%% used, %d/%d MB, %d piles, %d tiles, %d free slots]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.PileCount,
		s.TileCount,
		s.FreeSlots)
}

// Stats returns current pile-memory usage statistics.
func (s *Store) Stats() MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var utilization float64
	if s.budgetBytes > 0 {
		utilization = float64(s.usedBytes) / float64(s.budgetBytes)
	}

	return MemoryStats{
		TotalBytes:     s.budgetBytes,
		UsedBytes:      s.usedBytes,
		AvailableBytes: s.budgetBytes - s.usedBytes,
		PileCount:      len(s.piles) - 1,
		TileCount:      len(s.tiles) - 1,
		FreeSlots:      len(s.freeSlots),
		Utilization:    utilization,
	}
}
