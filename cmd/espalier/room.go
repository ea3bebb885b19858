package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Inspect and manage persisted rooms",
}

var roomLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List room IDs known to the store",
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd, func(ctx context.Context, store ports.RoomStore) error {
			ids, err := store.List(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var roomInspectCmd = &cobra.Command{
	Use:   "inspect <roomID>",
	Short: "Print a room's persisted state as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd, func(ctx context.Context, store ports.RoomStore) error {
			state, err := store.Load(ctx, args[0])
			if err != nil {
				if errors.Is(err, domain.ErrRoomNotFound) {
					return fmt.Errorf("room %q not found", args[0])
				}
				return err
			}
			out, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		})
	},
}

var roomRmCmd = &cobra.Command{
	Use:   "rm <roomID>",
	Short: "Delete a room; live sessions observe the teardown",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd, func(ctx context.Context, store ports.RoomStore) error {
			return store.Delete(ctx, args[0])
		})
	},
}

// withStore runs fn against the configured store with a request deadline,
// printing any error and exiting non-zero.
func withStore(cmd *cobra.Command, fn func(context.Context, ports.RoomStore) error) {
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

	if err := fn(ctx, store); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(roomCmd)
	roomCmd.AddCommand(roomLsCmd)
	roomCmd.AddCommand(roomInspectCmd)
	roomCmd.AddCommand(roomRmCmd)
}
