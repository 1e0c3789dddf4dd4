package schedule

import "context"

// Repository defines storage for trips and blocks.
type Repository interface {
	// GetBlock retrieves a block with its trips and breaks. Returns ErrBlockNotFound if missing.
	GetBlock(ctx context.Context, id string) (*Block, error)

	// ListBlocks returns the IDs of a country's blocks, ordered.
	ListBlocks(ctx context.Context, countryID string) ([]string, error)

	// FetchTrips returns the trips a block references, in sequence order.
	// Trips that no longer exist are omitted; callers detect them by comparing IDs.
	// Returns ErrBlockNotFound if the block is missing.
	FetchTrips(ctx context.Context, blockID string) ([]Trip, error)

	// GetTrip retrieves a trip with its stop times. Returns ErrTripNotFound if missing.
	GetTrip(ctx context.Context, id string) (*Trip, error)

	// SaveTrips creates or replaces trips and their stop times.
	SaveTrips(ctx context.Context, trips []Trip) error

	// SaveBlock creates or replaces a block with its trips and breaks.
	// Returns ErrTripAlreadyBlocked if a trip belongs to a different block.
	SaveBlock(ctx context.Context, b *Block) error

	// SaveComposed stores a composed block and the trips it runs as one
	// write. Ownership is checked first: if any trip belongs to a different
	// block it returns ErrTripAlreadyBlocked and nothing is written.
	SaveComposed(ctx context.Context, trips []Trip, b *Block) error
}
