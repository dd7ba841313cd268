package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/abbayes/internal/domain/model"
)

func newCheckCmd(c *cli) *cobra.Command {
	var engine string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the sampling engine can run both models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *c.cfg
			override(cmd.Flags(), "engine", func() { cfg.Engine = engine })
			svc, err := newService(&cfg, c.log)
			if err != nil {
				return err
			}
			var failed error
			for _, m := range []model.Model{model.ConversionModel, model.RevenueModel} {
				if err := svc.Check(cmd.Context(), m); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-30s FAIL %v\n", m.Name, err)
					if failed == nil {
						failed = err
					}
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s ok\n", m.Name)
			}
			if failed != nil {
				return fmt.Errorf("engine %s is not ready: %w", cfg.Engine, failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "sampling engine to check")
	return cmd
}
