package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpggio/runledger/internal/blobstore"
	"github.com/rpggio/runledger/internal/config"
	"github.com/rpggio/runledger/internal/domain/dataset"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage stored datasets",
	Long: `Manage the dataset store directly. The store is locked while a server
is running, so stop the server first.`,
}

var datasetsImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import CSV files into the dataset store",
	Long: `Import CSV files into the dataset store under their base file names.
An existing dataset with the same name is replaced.

Examples:
  runledger datasets import iris.csv
  runledger datasets import data/*.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDatasetsImport,
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored datasets",
	Args:  cobra.NoArgs,
	RunE:  runDatasetsList,
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
	datasetsCmd.AddCommand(datasetsImportCmd)
	datasetsCmd.AddCommand(datasetsListCmd)
}

func openDatasets() (*dataset.Service, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.Datasets.Path == "" {
		return nil, nil, fmt.Errorf("datasets.path is empty; the in-memory store cannot be managed offline")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	store, err := blobstore.Open(blobstore.Config{
		Path:             cfg.Datasets.Path,
		CompressionLevel: cfg.Datasets.CompressionLevel,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return dataset.NewService(store, logger), store.Close, nil
}

func runDatasetsImport(cmd *cobra.Command, args []string) error {
	svc, closeStore, err := openDatasets()
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		info, err := svc.Upload(cmd.Context(), filepath.Base(path), content)
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s\t%d rows\t%d columns\n", info.Filename, info.Rows, len(info.Columns))
	}
	return nil
}

func runDatasetsList(cmd *cobra.Command, args []string) error {
	svc, closeStore, err := openDatasets()
	if err != nil {
		return err
	}
	defer closeStore()

	names, err := svc.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
