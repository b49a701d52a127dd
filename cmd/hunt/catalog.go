package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eduzsantillan/scavenger-hunt/internal/cli"
	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

func newItemCmd(a *app) *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Manage the item catalog",
	}

	var name, sciName, synonyms string
	add := &cobra.Command{
		Use:   "add <itemId>",
		Short: "Add or replace a catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			it := &hunt.Item{ID: args[0], Name: name, SciName: sciName, Synonyms: cli.SplitList(synonyms)}
			if err := a.store.PutItem(cmd.Context(), it); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %s: required terms %v\n", it.ID, it.RequiredTerms())
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Display name")
	add.Flags().StringVar(&sciName, "sci-name", "", "Scientific name")
	add.Flags().StringVar(&synonyms, "synonyms", "", "Comma-separated synonyms")

	item.AddCommand(add)
	return item
}

func newGroupCmd(a *app) *cobra.Command {
	group := &cobra.Command{
		Use:   "group",
		Short: "Manage teams and sessions",
	}

	var id, kind, name, category, items string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a team or session with one uncollected record per item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := hunt.GroupKind(kind)
			if !k.Valid() {
				return fmt.Errorf("--kind must be team or session, got %q", kind)
			}
			itemIDs := cli.SplitList(items)
			if len(itemIDs) == 0 {
				return errors.New("--items must name at least one item")
			}
			if id == "" {
				id = uuid.NewString()
			}
			g := &hunt.Group{ID: id, Kind: k, Name: name, CategoryID: category}
			if err := a.store.CreateGroup(cmd.Context(), g, itemIDs); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	create.Flags().StringVar(&id, "id", "", "Group ID (generated when empty)")
	create.Flags().StringVar(&kind, "kind", string(hunt.KindTeam), "team or session")
	create.Flags().StringVar(&name, "name", "", "Display name")
	create.Flags().StringVar(&category, "category", "", "Category ID")
	create.Flags().StringVar(&items, "items", "", "Comma-separated item IDs")

	group.AddCommand(create)
	return group
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <groupId>",
		Short: "Show the collection records of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.store.GetGroupStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if status == nil {
				return fmt.Errorf("group %s: %w", args[0], hunt.ErrGroupNotFound)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status)
		},
	}
}
