package favorites

import (
	"context"
	"fmt"
)

// Migrate moves device-local favorites into userID's remote store. Ids in
// legacy but not yet remote are upserted, the legacy store is emptied, and
// the merged list (remote order, then the migrated ids) is returned.
//
// If the upsert fails the legacy favorites are kept for the next attempt and
// the remote list is returned with the error. A failure to empty legacy is
// returned alongside the merged list; the next run finds nothing missing.
func Migrate(ctx context.Context, legacy Legacy, remote Store, userID string) ([]int, error) {
	remoteIDs, err := remote.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	if remoteIDs == nil {
		remoteIDs = []int{}
	}

	localIDs, err := legacy.List(ctx, LocalUser)
	if err != nil {
		return remoteIDs, fmt.Errorf("read local favorites: %w", err)
	}
	if len(localIDs) == 0 {
		return remoteIDs, nil
	}

	have := make(map[int]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		have[id] = struct{}{}
	}
	var missing []int
	for _, id := range localIDs {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		if err := remote.Upsert(ctx, userID, missing); err != nil {
			return remoteIDs, fmt.Errorf("migrate local favorites: %w", err)
		}
	}

	merged := append(append(make([]int, 0, len(remoteIDs)+len(missing)), remoteIDs...), missing...)
	if err := legacy.Clear(ctx, LocalUser); err != nil {
		return merged, fmt.Errorf("clear local favorites: %w", err)
	}
	return merged, nil
}
