package news

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limited paces calls to the wrapped source.
type Limited struct {
	Source
	limiter *rate.Limiter
}

// Limit wraps s so it is called at most perMinute times a minute, with
// no burst. A non-positive perMinute returns s unchanged.
func Limit(s Source, perMinute int) Source {
	if perMinute <= 0 {
		return s
	}
	return &Limited{
		Source:  s,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Fetch waits for a token, giving up when ctx ends first.
func (l *Limited) Fetch(ctx context.Context) ([]Item, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit: %w", l.Name(), err)
	}
	return l.Source.Fetch(ctx)
}
