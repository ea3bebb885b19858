package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/domain"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the stage graph as a Mermaid flowchart",
	Long:  `Prints the canonical stage graph in Mermaid syntax. With --room, the room's visited, enabled and current stages are overlaid.`,
	Run: func(cmd *cobra.Command, args []string) {
		roomID, _ := cmd.Flags().GetString("room")
		if roomID == "" {
			fmt.Println(graph.GenerateMermaid(domain.DefaultGraph(), nil))
			return
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

		state, err := store.Load(ctx, roomID)
		if err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				fmt.Printf("Error: room %q not found\n", roomID)
			} else {
				fmt.Printf("Error: %v\n", err)
			}
			os.Exit(1)
		}

		overlay := &graph.Overlay{
			VisitedStages: state.VisitedStages,
			EnabledStages: state.EnabledStages(),
			CurrentStage:  state.CurrentStage,
		}
		fmt.Println(graph.GenerateMermaid(domain.DefaultGraph(), overlay))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("room", "", "Room ID to overlay state from")
}
