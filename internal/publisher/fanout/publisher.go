// Package fanout delivers one event to several publishers.
package fanout

import (
	"context"
	"errors"

	"github.com/JakeFAU/gazette-watcher/internal/gazette"
)

// Publisher forwards every Publish call to each target in order.
type Publisher struct {
	targets []gazette.Publisher
}

// New skips nil targets.
func New(targets ...gazette.Publisher) *Publisher {
	p := &Publisher{}
	for _, t := range targets {
		if t != nil {
			p.targets = append(p.targets, t)
		}
	}
	return p
}

// Publish returns the first non-empty message id. A failing target does not
// stop the others; all failures are joined.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	var (
		id   string
		errs []error
	)
	for _, t := range p.targets {
		got, err := t.Publish(ctx, topic, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id == "" {
			id = got
		}
	}
	return id, errors.Join(errs...)
}
