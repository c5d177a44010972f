// Package graph builds and snapshots the user/resource behavior graph.
package graph

import (
	"context"
	"log/slog"

	"github.com/trustlab/kestrel/internal/domain"
)

// Builder ingests behavior events into the association-edge store. The graph
// is append-only; malformed events are rejected per record and never abort a
// batch. The accepted portion of a batch commits in one transaction together
// with the version bump, so snapshot loaders never see a prefix of a batch
// under an unchanged version.
type Builder struct {
	repo domain.Repository
}

// NewBuilder creates a graph builder over the given repository.
func NewBuilder(repo domain.Repository) *Builder {
	return &Builder{repo: repo}
}

// Ingest validates and commits a batch of behavior events. The returned
// report lists accepted and rejected counts; only a repository failure (not
// a bad record) produces a non-nil error.
func (b *Builder) Ingest(ctx context.Context, events []domain.BehaviorEvent) (*domain.IngestReport, error) {
	report := &domain.IngestReport{}

	var accepted []*domain.BehaviorEvent
	for i := range events {
		event := &events[i]

		if err := event.Validate(); err != nil {
			report.Rejected = append(report.Rejected, domain.RejectedEvent{
				Index:  i,
				Reason: err.Error(),
			})
			continue
		}
		accepted = append(accepted, event)
	}
	report.Accepted = len(accepted)

	if len(accepted) > 0 {
		version, err := b.repo.CommitEvents(ctx, accepted)
		if err != nil {
			return nil, err
		}
		report.GraphVersion = version
	} else {
		version, err := b.repo.GraphVersion(ctx)
		if err != nil {
			return nil, err
		}
		report.GraphVersion = version
	}

	if len(report.Rejected) > 0 {
		slog.Warn("ingestion batch had rejects",
			"accepted", report.Accepted,
			"rejected", len(report.Rejected),
		)
	}

	return report, nil
}
