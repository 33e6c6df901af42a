package inherent

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// DataProvider contributes entries to the inherent data bundle. Providers may
// block (reading a clock, fetching a block) and run concurrently.
type DataProvider interface {
	ProvideInherentData(ctx context.Context, data *Data) error
}

// ErrorHandler is implemented by providers that can interpret errors
// reported against their identifier during inherent checking.
type ErrorHandler interface {
	// TryHandleError returns the interpreted error and true when id belongs
	// to the provider, or false to let another provider handle it.
	TryHandleError(id Identifier, err error) (error, bool)
}

// Collect runs every provider concurrently against a fresh bundle. Providers
// have no ordering dependency on each other. The first failing provider
// cancels the others.
func Collect(ctx context.Context, providers ...DataProvider) (*Data, error) {
	data := NewData()
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		g.Go(func() error {
			return p.ProvideInherentData(gctx, data)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "collect inherent data")
	}
	return data, nil
}

// HandleErrors turns the recorded check results into a single error,
// letting providers that implement ErrorHandler interpret their own
// identifiers. It returns nil when the results are ok.
func HandleErrors(results *CheckResults, providers ...DataProvider) error {
	for _, id := range results.Identifiers() {
		err := results.Error(id)
		for _, p := range providers {
			h, ok := p.(ErrorHandler)
			if !ok {
				continue
			}
			if handled, ok := h.TryHandleError(id, err); ok {
				return handled
			}
		}
		return errors.Wrapf(err, "inherent %s", id)
	}
	return nil
}

// ParentBlockProvider puts the full encoded parent block (header and body)
// into the bundle so the runtime can find the previous inherents. The block
// itself never goes into an extrinsic.
type ParentBlockProvider struct {
	Block []byte
}

// ProvideInherentData implements DataProvider.
func (p ParentBlockProvider) ProvideInherentData(_ context.Context, data *Data) error {
	return data.Put(ParentBlockIdentifier, p.Block)
}

// TryHandleError implements ErrorHandler for ParentBlockIdentifier.
func (p ParentBlockProvider) TryHandleError(id Identifier, err error) (error, bool) {
	if id != ParentBlockIdentifier {
		return nil, false
	}
	return errors.Wrap(err, "parent block inherent"), true
}

// TimestampProvider puts the local wall-clock time, in unix milliseconds,
// into the bundle.
type TimestampProvider struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// ProvideInherentData implements DataProvider.
func (p TimestampProvider) ProvideInherentData(ctx context.Context, data *Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return data.PutUint64(TimestampIdentifier, uint64(now().UnixMilli()))
}

// TryHandleError implements ErrorHandler for TimestampIdentifier.
func (p TimestampProvider) TryHandleError(id Identifier, err error) (error, bool) {
	if id != TimestampIdentifier {
		return nil, false
	}
	return errors.Wrap(err, "timestamp inherent"), true
}
