package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
)

func init() {
	providersCmd.AddCommand(listProvidersCmd)
	providersCmd.AddCommand(verifyProviderCmd)
	providersCmd.AddCommand(deactivateProviderCmd)

	// Add flags
	listProvidersCmd.Flags().BoolP("eligible", "e", false, "Only providers able to receive offers")
	listProvidersCmd.Flags().IntP("limit", "l", 0, "Limit the number of providers returned")

	verifyProviderCmd.Flags().UintP("id", "i", 0, "Provider ID to verify")
	_ = verifyProviderCmd.MarkFlagRequired("id")

	deactivateProviderCmd.Flags().UintP("id", "i", 0, "Provider ID to deactivate")
	_ = deactivateProviderCmd.MarkFlagRequired("id")
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect and manage providers",
}

var listProvidersCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		eligible, _ := cmd.Flags().GetBool("eligible")
		limit, _ := cmd.Flags().GetInt("limit")

		providers, err := repos.NewProviderRepository(database).
			List(cmd.Context(), eligible, &models.ListOptions{Limit: limit})
		if err != nil {
			return fmt.Errorf("error fetching providers: %w", err)
		}
		return printJSON(providers)
	},
}

var verifyProviderCmd = &cobra.Command{
	Use:   "verify",
	Short: "Mark a provider as verified",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetUint("id")

		repo := repos.NewProviderRepository(database)
		p, err := repo.GetByID(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("error fetching provider %d: %w", id, err)
		}
		if p.Verified {
			fmt.Printf("provider %d is already verified\n", id)
			return nil
		}
		p.Verified = true
		if err := repo.Update(cmd.Context(), p); err != nil {
			return fmt.Errorf("error verifying provider %d: %w", id, err)
		}
		fmt.Printf("provider %d verified\n", id)
		return nil
	},
}

var deactivateProviderCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Take a provider out of rotation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetUint("id")

		if err := repos.NewProviderRepository(database).Deactivate(cmd.Context(), id); err != nil {
			return fmt.Errorf("error deactivating provider %d: %w", id, err)
		}
		fmt.Printf("provider %d deactivated\n", id)
		return nil
	},
}
