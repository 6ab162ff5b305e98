package sundaerooms

import (
	"context"
)

// Resolver computes the target connection ids for an Addressing.
type Resolver struct {
	Store Store
}

// Resolve returns the ordered, distinct target set. sender is the connection
// that triggered the emit; it only matters for ModeTo, and an empty sender
// (a server-side emit) excludes nobody.
func (r Resolver) Resolve(ctx context.Context, addressing Addressing, sender string) ([]string, error) {
	var (
		ids []string
		err error
	)
	switch addressing.mode {
	case ModeBroadcast:
		ids, err = r.Store.ListAllConnectionIDs(ctx)
		if err != nil {
			return nil, WrapStorageError("list connections", err)
		}
		return Distinct(ids, ""), nil

	case ModeTo, ModeIn:
		if len(addressing.channels) == 0 {
			return nil, nil
		}
		excluding := ""
		if addressing.mode == ModeTo {
			excluding = sender
		}
		ids, err = r.Store.ListDistinctConnectionIDsInChannels(ctx, addressing.channels, excluding)
		if err != nil {
			return nil, WrapStorageError("list channel members", err)
		}
		return Distinct(ids, excluding), nil

	default:
		return nil, nil
	}
}
