package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/tradeledger/internal/audit"
	"github.com/angelmondragon/tradeledger/pkg/enums"
)

func newAuditCmd(open openFunc) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check stored totals and broker links against their derivations",
		Example: `  # Report drift only
  ledgerctl audit

  # Rewrite drifted documents
  ledgerctl audit --fix`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.services.Audit.Run(cmd.Context(), audit.Options{Fix: fix})
			if report != nil {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if !report.Clean() && !fix {
				return fmt.Errorf("%d drifted fields found, rerun with --fix to repair", len(report.Findings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair drifted documents")
	return cmd
}

func newSummaryCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print settlement totals for a broker or commissioner",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "broker <id>",
		Short: "Commission owed and paid across a broker's invoices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid broker id: %w", err)
			}
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := s.services.BrokerLedger.Summary(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "commissioner <id>",
		Short: "Commission billed, received and pending across a commissioner's sheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid commissioner id: %w", err)
			}
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := s.services.Commissions.Summary(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	})
	return cmd
}

func newJournalCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "journal <entity-type> <id>",
		Short: "List journal entries recorded for one document",
		Example: `  ledgerctl journal customer_invoice 6f1c1f0e-1b7a-4a36-9f0e-9d1b0f3f2a11
  ledgerctl journal inventory_item 4821`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := enums.EntityType(args[0])
			if !kind.IsValid() {
				return fmt.Errorf("unknown entity type %q", args[0])
			}
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.services.Journal.ListByEntity(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
}
