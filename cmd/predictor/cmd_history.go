package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List stored predictions, or show one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{store: true})
			if err != nil {
				return err
			}
			defer a.close()
			if a.db == nil {
				return errors.New("prediction history is disabled (store.disabled)")
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				p, err := a.db.GetPrediction(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(out, p)
			}

			q := store.PredictionsQuery{}
			q.ClientSeed, _ = cmd.Flags().GetString("client-seed")
			q.Page, _ = cmd.Flags().GetInt("page")
			q.PerPage, _ = cmd.Flags().GetInt("limit")
			if game, _ := cmd.Flags().GetString("game"); game != "" {
				kind, err := backend.ParseGameKind(game)
				if err != nil {
					return err
				}
				q.Game = string(kind)
			}

			list, err := a.db.ListPredictions(cmd.Context(), q)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(out, list)
			}
			if len(list.Predictions) == 0 {
				fmt.Fprintln(out, "No predictions found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tGAME\tMODE\tNONCE")
			for _, p := range list.Predictions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
					p.ID, p.CreatedAt.Local().Format("2006-01-02 15:04:05"), p.Game, p.Mode, p.Nonce)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\npage %d of %d (%d total)\n", list.Page, list.TotalPages, list.TotalCount)
			return nil
		},
	}
	cmd.Flags().String("game", "", "Filter by game")
	cmd.Flags().String("client-seed", "", "Filter by client seed")
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("limit", 20, "Predictions per page")
	return cmd
}
