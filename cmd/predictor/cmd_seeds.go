package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/seedvault"
)

func newSeedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "Manage saved seed profiles",
		Long: `Seed profiles are stored in the OS keychain, or in a private JSON file
when no keychain is available. A profile's nonce advances each time
"predict --profile" succeeds.`,
	}
	cmd.AddCommand(newSeedsSaveCmd(), newSeedsShowCmd(), newSeedsDeleteCmd(), newSeedsListCmd())
	return cmd
}

func newVaultApp(cmd *cobra.Command) (*seedvault.Vault, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return (&app{cfg: cfg}).vault(), nil
}

func newSeedsSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Create or replace a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newVaultApp(cmd)
			if err != nil {
				return err
			}
			client, _ := cmd.Flags().GetString("client-seed")
			server, _ := cmd.Flags().GetString("server-seed-hash")
			nonceText, _ := cmd.Flags().GetString("nonce")
			nonce, err := engine.ParseNonce(nonceText)
			if err != nil {
				return err
			}
			if err := v.Save(seedvault.Profile{
				Name:           args[0],
				ClientSeed:     client,
				ServerSeedHash: server,
				NextNonce:      nonce,
			}); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "saved", "profile": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("client-seed", "", "Client seed")
	cmd.Flags().String("server-seed-hash", "", "Hashed server seed")
	cmd.Flags().String("nonce", "0", "Next nonce to predict")
	return cmd
}

func newSeedsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newVaultApp(cmd)
			if err != nil {
				return err
			}
			p, err := v.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, p)
			}
			fmt.Fprintf(out, "profile:          %s\n", p.Name)
			fmt.Fprintf(out, "client seed:      %s\n", p.ClientSeed)
			fmt.Fprintf(out, "server seed hash: %s\n", p.ServerSeedHash)
			fmt.Fprintf(out, "next nonce:       %d\n", p.NextNonce)
			return nil
		},
	}
}

func newSeedsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newVaultApp(cmd)
			if err != nil {
				return err
			}
			if err := v.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", args[0])
			return nil
		},
	}
}

func newSeedsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profile names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newVaultApp(cmd)
			if err != nil {
				return err
			}
			names, err := v.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, names)
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}
