package cli

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/models"
	"github.com/bhtools/podbulk/internal/session"
)

func newStoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List the stores of the Printify account",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := connectPlatform(cmd, s); err != nil {
				return err
			}

			opts := lo.Map(s.Catalog.Catalogs(), func(c models.Catalog, _ int) events.Option {
				return events.Option{Value: c.ID.String(), Label: c.Name}
			})
			printOptions(cmd.OutOrStdout(), "Stores", opts, "")
			return nil
		},
	}
}

func newProductsCmd() *cobra.Command {
	var storeID string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the example products of a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := connectPlatform(cmd, s); err != nil {
				return err
			}
			if err := s.SelectCatalog(GetContext(), storeID); err != nil {
				return fmt.Errorf("store %s: %w", storeID, err)
			}

			opts := lo.Map(s.Catalog.Templates(), func(t models.TemplateItem, _ int) events.Option {
				return events.Option{Value: t.ID.String(), Label: t.Title}
			})
			printOptions(cmd.OutOrStdout(), "Products in store "+storeID, opts, "")
			return nil
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "Store ID (required)")
	_ = cmd.MarkFlagRequired("store")

	cmd.AddCommand(newProductShowCmd())
	return cmd
}

func newProductShowCmd() *cobra.Command {
	var storeID, productID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show title, description and tags of an example product",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := connectPlatform(cmd, s); err != nil {
				return err
			}
			ctx := GetContext()
			if err := s.SelectCatalog(ctx, storeID); err != nil {
				return fmt.Errorf("store %s: %w", storeID, err)
			}
			if err := s.Catalog.SelectTemplate(productID); err != nil {
				return fmt.Errorf("product %s: %w", productID, err)
			}
			d, err := s.Catalog.TemplateDetails(ctx, s.Key(models.KindPlatform))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Title:"), d.Title)
			fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Tags:"), strings.Join(d.Tags, ", "))
			fmt.Fprintln(out, headerStyle.Render("Description:"))
			fmt.Fprintln(out, d.Description)
			return nil
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "Store ID (required)")
	cmd.Flags().StringVar(&productID, "product", "", "Product ID (required)")
	_ = cmd.MarkFlagRequired("store")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the local Ollama models known to the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.Catalog.LoadModels(GetContext()); err != nil {
				return fmt.Errorf("Ollama not available: %w", err)
			}
			opts := lo.Map(s.Catalog.Models(), func(n string, _ int) events.Option { return events.Option{Value: n} })
			printOptions(cmd.OutOrStdout(), "Ollama models", opts, s.Catalog.Selection().Model)
			return nil
		},
	}
}

// connectPlatform validates the platform key, which loads the store list,
// and prints the key's status line on stderr.
func connectPlatform(cmd *cobra.Command, s *session.Session) error {
	if s.Key(models.KindPlatform) == "" {
		return errNoPlatformKey
	}
	err := s.ConnectPlatform(GetContext())
	if err != nil {
		printCredential(cmd.ErrOrStderr(), s.Credentials.Status(models.KindPlatform))
	}
	return err
}
