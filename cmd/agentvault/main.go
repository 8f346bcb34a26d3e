// Command agentvault is the operational CLI for the session store:
// inspect stats, show and search sessions, delete them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agentvault/internal/config"
	"agentvault/internal/logging"
	"agentvault/internal/store"
)

var (
	flagConfig  string
	flagDataDir string
	flagDebug   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentvault",
		Short: "Hybrid session persistence for multi-agent systems",
		Long: `agentvault retains agent session state across a relational store
(metadata and interaction logs), a document store (context blobs) and a
vector store (similarity search), behind one facade.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config YAML (default <data-dir>/config.yaml)")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", ".agentvault", "root directory for persisted state")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(statsCmd(), showCmd(), searchCmd(), deleteCmd())
	return root
}

// openStore loads config, initializes logging and opens the facade.
func openStore() (*store.HybridStore, error) {
	path := flagConfig
	if path == "" {
		path = flagDataDir + "/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagDebug {
		cfg.Logging.DebugMode = true
	}

	if err := logging.Initialize(logging.Options{
		Dir:        cfg.Logging.Dir,
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}

	return store.Open(cfg)
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics across all backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := openStore()
			if err != nil {
				return err
			}
			defer hs.Close()

			stats, err := hs.Stats(context.Background())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's full retained context as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := openStore()
			if err != nil {
				return err
			}
			defer hs.Close()

			sc, err := hs.LoadSession(context.Background(), args[0])
			if err != nil {
				return err
			}
			if sc == nil {
				return fmt.Errorf("session %s not found", args[0])
			}
			return printJSON(cmd, sc)
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		topK  int
		owner string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find sessions similar to a free-text query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := openStore()
			if err != nil {
				return err
			}
			defer hs.Close()

			results, err := hs.SearchSimilarSessions(context.Background(), args[0], topK, owner)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				cmd.Println("No similar sessions found.")
				return nil
			}
			for _, r := range results {
				cmd.Printf("%.4f  %s  (owner=%s status=%s)\n",
					r.Similarity, r.SessionID, r.Context.Metadata.OwnerID, r.Context.Metadata.Status)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 5, "maximum number of results")
	cmd.Flags().StringVar(&owner, "owner", "", "restrict results to one owner (applied after the top-k cut)")
	return cmd
}

func deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Remove a session from every backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete without --yes")
			}
			hs, err := openStore()
			if err != nil {
				return err
			}
			defer hs.Close()

			if err := hs.DeleteSession(context.Background(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Deleted session %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
