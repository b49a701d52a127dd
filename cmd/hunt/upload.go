package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
	"github.com/eduzsantillan/scavenger-hunt/internal/oracle"
	"github.com/eduzsantillan/scavenger-hunt/internal/pipeline"
	"github.com/eduzsantillan/scavenger-hunt/internal/pubsub"
	"github.com/eduzsantillan/scavenger-hunt/internal/store"
)

// localContainer stands in for the upload bucket name.
const localContainer = "local"

// catalogTerms reads required terms from the catalog the way the upload API
// stamps them on the object: encoded, then parsed back.
type catalogTerms struct {
	store      store.Store
	noMetadata bool
}

func (c catalogTerms) RequiredTerms(ctx context.Context, ref hunt.UploadReference) ([]string, error) {
	if c.noMetadata {
		return nil, labels.ErrMetadataMissing
	}
	item, err := c.store.GetItem(ctx, ref.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, labels.ErrMetadataMissing
	}
	return labels.ParseRequiredTerms(labels.EncodeRequiredTerms(item.RequiredTerms()))
}

type uploadOptions struct {
	ext        string
	labels     string
	duplicate  bool
	staleGuard bool
	noMetadata bool
}

func newUploadCmd(a *app) *cobra.Command {
	var opts uploadOptions
	cmd := &cobra.Command{
		Use:   "upload <groupId> <itemId>",
		Short: "Simulate a photo upload and run it through the pipeline",
		Long: `upload labels a simulated photo with --labels, publishes the verification
event on an in-memory channel, applies it to the collection record and
recomputes group completion. The event is printed as JSON.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUpload(cmd, args[0], args[1], opts)
		},
	}
	cmd.Flags().StringVar(&opts.ext, "ext", "jpg", "Image extension")
	cmd.Flags().StringVar(&opts.labels, "labels", "", `Detected labels, e.g. "wolf:98,snow:80"`)
	cmd.Flags().BoolVar(&opts.duplicate, "duplicate", false, "Deliver the event twice")
	cmd.Flags().BoolVar(&opts.staleGuard, "stale-guard", false, "Reject events older than the stored one")
	cmd.Flags().BoolVar(&opts.noMetadata, "no-metadata", false, "Upload without required terms metadata")
	return cmd
}

func (a *app) runUpload(cmd *cobra.Command, groupID, itemID string, opts uploadOptions) error {
	ctx := cmd.Context()

	detected, err := oracle.ParseStaticLabels(opts.labels)
	if err != nil {
		return err
	}
	ref, err := hunt.ParseUploadReference(localContainer, hunt.UploadKey(groupID, itemID, opts.ext))
	if err != nil {
		return err
	}

	ch := pubsub.NewMemoryChannel(pubsub.MemoryOptions{DuplicateDelivery: opts.duplicate})
	aggregator := pipeline.NewAggregator(a.store)
	updater := pipeline.NewUpdater(a.store, pipeline.InlineTrigger{Aggregator: aggregator},
		pipeline.WithStaleEventGuard(opts.staleGuard))
	ch.Subscribe(updater.HandleVerificationEvent)

	analyzer := pipeline.NewAnalyzer(oracle.NewStaticDetector(detected),
		catalogTerms{store: a.store, noMetadata: opts.noMetadata}, ch)
	evt, err := analyzer.ProcessUpload(ctx, ref)
	if err != nil {
		return err
	}

	stats, err := ch.Drain(ctx)
	if err != nil {
		return fmt.Errorf("apply verification event: %w", err)
	}
	if dead := ch.DeadLetters(); len(dead) > 0 {
		return fmt.Errorf("verification event dead-lettered after %d attempts: %w", dead[0].Attempts, dead[0].LastErr)
	}
	log.Debug().Int("delivered", stats.Delivered).Int("redelivered", stats.Redelivered).Msg("Channel drained")

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(evt)
}
