package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/loader"
	"github.com/rpattn/revstore/internal/seed"
	"github.com/rpattn/revstore/internal/service"
)

func ownerFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("owner")
	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --owner %q: %w", raw, err)
	}
	return owner, nil
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Insert page rows from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fixture, err := seed.LoadYAML(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := seed.Apply(cmd.Context(), a.units, a.pages, fixture)
		if err != nil {
			return err
		}

		a.log.Info("seeded fixture",
			zap.String("file", args[0]),
			zap.Int("contents", result.Contents),
			zap.Int("layouts", result.Layouts),
		)
		return nil
	},
}

// pageView is the list output of one page
type pageView struct {
	Owner    uuid.UUID             `json:"owner"`
	Revision string                `json:"revision"`
	Contents []*domain.PageContent `json:"contents"`
	Layouts  []*domain.PageLayout  `json:"layouts"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the page rows answering a revision",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawOwners, _ := cmd.Flags().GetStringSlice("owner")
		owners := make([]uuid.UUID, 0, len(rawOwners))
		for _, raw := range rawOwners {
			owner, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid --owner %q: %w", raw, err)
			}
			owners = append(owners, owner)
		}
		raw, _ := cmd.Flags().GetString("revision")
		indicator, err := domain.ParseIndicator(raw)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		contentLoader, err := loader.NewRevisionLoader(a.pages.Contents, indicator)
		if err != nil {
			return err
		}
		layoutLoader, err := loader.NewRevisionLoader(a.pages.Layouts, indicator)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		contents, err := contentLoader.LoadMany(ctx, owners)
		if err != nil {
			return err
		}
		layouts, err := layoutLoader.LoadMany(ctx, owners)
		if err != nil {
			return err
		}

		views := make([]pageView, len(owners))
		for i, owner := range owners {
			views[i] = pageView{
				Owner:    owner,
				Revision: indicator.String(),
				Contents: contents[i],
				Layouts:  layouts[i],
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the page drafts as a new revision",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := ownerFlag(cmd)
		if err != nil {
			return err
		}
		rev, _ := cmd.Flags().GetInt64("revision")
		if rev < 0 {
			return &domain.InvalidRevisionError{Value: fmt.Sprint(rev)}
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		publisher := service.NewPagePublisher(a.pages, a.units, a.log)
		published, err := publisher.Publish(cmd.Context(), owner, rev)
		if err != nil {
			return err
		}

		fmt.Printf("Published %s as revision %d\n", owner, published)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every revision of a page",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := ownerFlag(cmd)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var contents, layouts int
		err = a.units.WithinUnit(cmd.Context(), func(ctx context.Context) error {
			var err error
			if contents, err = a.pages.Contents.DeleteAllForOwner(ctx, owner); err != nil {
				return err
			}
			layouts, err = a.pages.Layouts.DeleteAllForOwner(ctx, owner)
			return err
		})
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d content and %d layout rows of %s\n", contents, layouts, owner)
		return nil
	},
}
