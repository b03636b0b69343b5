package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gumshoe/internal/store"
	"gumshoe/internal/types"
)

var casesUser string

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Inspect stored cases",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases for a user, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewLocalStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()

		cases, err := s.ListCases(casesUser)
		if err != nil {
			return err
		}
		if len(cases) == 0 {
			fmt.Printf("No cases for user %q.\n", casesUser)
			return nil
		}
		for _, c := range cases {
			problem := c.ProblemStatement
			if problem == "" {
				problem = "(no problem statement yet)"
			}
			fmt.Printf("%s  %-12s %-12s turn=%-3d %s\n",
				c.ID, c.Status, c.Phase, c.Turn, problem)
		}
		return nil
	},
}

var casesShowCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Show a case with its ledgers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewLocalStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.GetCase(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("case %s (v%d)\n", c.ID, c.Version)
		fmt.Printf("  status: %s   phase: %s   turn: %d\n", c.Status, c.Phase, c.Turn)
		if c.ProblemStatement != "" {
			fmt.Printf("  problem: %s\n", c.ProblemStatement)
		}
		if c.Stall != nil {
			fmt.Printf("  stalled: %s\n", c.Stall.Reason)
		}

		requests, err := s.EvidenceRequests(c.ID)
		if err != nil {
			return err
		}
		if len(requests) > 0 {
			fmt.Println("  evidence requests:")
			for _, r := range requests {
				fmt.Printf("    [%s] %-10s %s (%.0f%%)\n", r.Category, r.Status, r.Label, r.Completeness*100)
			}
		}

		hypotheses, err := s.Hypotheses(c.ID)
		if err != nil {
			return err
		}
		if len(hypotheses) > 0 {
			fmt.Println("  hypotheses:")
			for _, h := range hypotheses {
				fmt.Printf("    [%.0f%% %s] %s\n", h.Likelihood*100, h.Status, h.Statement)
			}
		}
		return nil
	},
}

var casesAbandonCmd = &cobra.Command{
	Use:   "abandon <case-id>",
	Short: "Mark a case abandoned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewLocalStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.GetCase(args[0])
		if err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(types.StatusAbandoned) {
			return fmt.Errorf("case %s is %s and cannot be abandoned", c.ID, c.Status)
		}
		c.Status = types.StatusAbandoned
		if err := s.SaveCase(c, c.Version); err != nil {
			return err
		}
		fmt.Printf("case %s abandoned\n", c.ID)
		return nil
	},
}

var casesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewLocalStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return err
		}
		for _, table := range []string{"cases", "sessions", "evidence_requests", "evidence_provided", "hypotheses", "case_vectors"} {
			fmt.Printf("%-18s %d\n", table, stats[table])
		}
		return nil
	},
}

func init() {
	casesCmd.PersistentFlags().StringVar(&casesUser, "user", defaultUser(), "User identity")
	casesCmd.AddCommand(casesListCmd)
	casesCmd.AddCommand(casesShowCmd)
	casesCmd.AddCommand(casesAbandonCmd)
	casesCmd.AddCommand(casesStatsCmd)
}
