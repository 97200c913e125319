package news

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/metrics"
)

// DefaultTimeout bounds each source fetch.
const DefaultTimeout = 10 * time.Second

// Aggregator fans out to every source and merges what comes back.
type Aggregator struct {
	sources     []Source
	timeout     time.Duration
	maxItems    int
	dedupPrefix int
	log         logrus.FieldLogger
	now         func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

func WithTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLimits overrides the merged item cap and the dedup prefix length.
func WithLimits(maxItems, dedupPrefix int) AggregatorOption {
	return func(a *Aggregator) {
		if maxItems > 0 {
			a.maxItems = maxItems
		}
		if dedupPrefix > 0 {
			a.dedupPrefix = dedupPrefix
		}
	}
}

func WithLogger(log logrus.FieldLogger) AggregatorOption {
	return func(a *Aggregator) { a.log = log }
}

func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator keeps sources in priority order: on duplicate titles the
// earlier source wins.
func NewAggregator(sources []Source, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		sources:     sources,
		timeout:     DefaultTimeout,
		maxItems:    DefaultMaxItems,
		dedupPrefix: DefaultDedupPrefix,
		log:         logrus.StandardLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sources lists source names in priority order.
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

// Collect fetches all sources concurrently and merges the live items.
// Failed sources are logged and skipped. The result may be empty.
func (a *Aggregator) Collect(ctx context.Context) []Item {
	batches := make([][]Item, len(a.sources))
	var g errgroup.Group
	for i, s := range a.sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			items, err := s.Fetch(sctx)
			metrics.RecordNewsFetch(s.Name(), err)
			if err != nil {
				a.log.WithFields(logrus.Fields{
					"source":  s.Name(),
					"elapsed": time.Since(start).String(),
				}).WithError(err).Warn("news source failed")
				return nil
			}
			batches[i] = items
			return nil
		})
	}
	_ = g.Wait()

	return Merge(batches, a.dedupPrefix, a.maxItems)
}

// Fetch is Collect with the placeholder set substituted for an empty result.
func (a *Aggregator) Fetch(ctx context.Context) []Item {
	items := a.Collect(ctx)
	if len(items) == 0 {
		a.log.Warn("no live news, serving placeholders")
		return Placeholders(a.now())
	}
	return items
}
