package runtime

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/timestamp"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ErrNoTimestamp is returned when the output set holds no timestamp at all.
var ErrNoTimestamp = errors.New("no timestamp in the output set")

// EvictableTimestamps scans the output set for timestamps old enough to be
// cleaned up. The newest timestamp is returned as the reference to peek;
// evictable holds at most config.MaxTxEvictions refs, oldest first.
func (r *Runtime) EvictableTimestamps() (types.OutputRef, []types.OutputRef, error) {
	store := r.Exec.Store()
	refs, err := store.RefsByType(timestamp.Timestamp{}.TypeID())
	if err != nil {
		return types.OutputRef{}, nil, errors.Wrap(err, "list timestamps")
	}

	type stamped struct {
		ref types.OutputRef
		ts  timestamp.Timestamp
	}
	all := make([]stamped, 0, len(refs))
	for _, ref := range refs {
		out, err := store.Get(ref)
		if err != nil {
			return types.OutputRef{}, nil, errors.Wrapf(err, "load timestamp %s", ref)
		}
		ts, err := dynamic.Extract[timestamp.Timestamp](out.Payload)
		if err != nil {
			// Indexed under the timestamp type id but not decodable.
			r.logger.Warn().Err(err).Str("ref", ref.String()).Msg("Skipping malformed timestamp")
			continue
		}
		all = append(all, stamped{ref: ref, ts: ts})
	}
	if len(all) == 0 {
		return types.OutputRef{}, nil, ErrNoTimestamp
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ts.Block < all[j].ts.Block })
	reference := all[len(all)-1]

	rules := r.Timestamp.Rules()
	var evictable []types.OutputRef
	for _, s := range all[:len(all)-1] {
		if len(evictable) == config.MaxTxEvictions {
			break
		}
		if !olderThan(s.ts.Time, reference.ts.Time, rules.MinTimeBeforeCleanup) {
			continue
		}
		if !olderThan(uint64(s.ts.Block), uint64(reference.ts.Block), uint64(rules.MinBlocksBeforeCleanup)) {
			continue
		}
		evictable = append(evictable, s.ref)
	}
	return reference.ref, evictable, nil
}

// olderThan mirrors the clean-up checker's age test: old + gap < ref.
func olderThan(old, ref, gap uint64) bool {
	return ref > old && ref-old > gap
}
