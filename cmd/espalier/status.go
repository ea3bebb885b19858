package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/guard"
	"github.com/aretw0/espalier/pkg/session"
)

var statusCmd = &cobra.Command{
	Use:   "status <roomID>",
	Short: "Show a participant's accessibility report for a room",
	Long:  `Opens a session in the room as the given participant and renders the per-stage accessibility report. Opening a session in a room that does not exist yet creates it.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			fmt.Println("Error: --user is required")
			os.Exit(1)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		store, closeStore, err := newStore(cfg)
		if err != nil {
			fmt.Printf("Error building store: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = closeStore() }()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sess, err := espalier.Open(ctx, store, args[0], userID, session.WithLogger(newLogger(cfg)))
		if err != nil {
			fmt.Printf("Error opening session: %v\n", err)
			os.Exit(1)
		}
		defer sess.Close()

		// With --stage, evaluate the navigation guard for that stage
		// instead of printing the full report. Exits non-zero when the
		// stage is not ready, so the command works as a shell gate.
		if stage, _ := cmd.Flags().GetString("stage"); stage != "" {
			g := guard.New(sess, domain.StageID(stage),
				guard.WithGracePeriod(cfg.GracePeriod.Std()),
			)
			decision := g.Wait(ctx)
			fmt.Printf("%s: %s\n", stage, decision.Status)
			if decision.Reason != "" {
				fmt.Printf("  %s\n", decision.Reason)
			}
			if decision.Status != guard.StatusReady {
				os.Exit(1)
			}
			return
		}

		markdown, err := tui.ReportMarkdown(sess)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		render := tui.NewRenderer()
		out, err := render(markdown)
		if err != nil {
			// Styling failures are not fatal; fall back to raw markdown.
			out = markdown
		}
		fmt.Print(out)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("user", "u", "", "Participant ID to open the session as")
	statusCmd.Flags().String("stage", "", "Evaluate the navigation guard for this stage instead of printing the report")
}
