package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/pipeline"
)

type groupAggregator interface {
	Aggregate(ctx context.Context, groupID string) (bool, error)
}

type handler struct {
	aggregator groupAggregator
}

// AggregateResult is returned for synchronous invocations and logged for
// async ones.
type AggregateResult struct {
	GroupID     string `json:"groupId"`
	IsCompleted bool   `json:"isCompleted"`
}

// handle returns an error only when the store failed, so Lambda's async
// retry runs the scan again. A request without a groupId is dropped.
func (h *handler) handle(ctx context.Context, req pipeline.AggregateRequest) (AggregateResult, error) {
	groupID := strings.TrimSpace(req.GroupID)
	if groupID == "" {
		log.Warn().Msg("Aggregate request without groupId, ignoring")
		return AggregateResult{}, nil
	}
	done, err := h.aggregator.Aggregate(ctx, groupID)
	if err != nil {
		log.Error().Err(err).Str("groupId", groupID).Msg("Aggregation failed")
		return AggregateResult{GroupID: groupID}, err
	}
	return AggregateResult{GroupID: groupID, IsCompleted: done}, nil
}
