package commands

import (
	"context"
	"fmt"

	"github.com/cecad-imaging/omerowatch/internal/config"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	listStatus  string
	listExports bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded fetches and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only fetches with this status (pending, fetching, ready, failed)")
	listCmd.Flags().BoolVar(&listExports, "exports", false, "List volumes uploaded to S3 instead")
}

func runList(cmd *cobra.Command, args []string) error {
	if listExports {
		return listUploadedVolumes()
	}

	repo, _, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	fetches, err := repo.List(listStatus)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(fetches) == 0 {
		fmt.Println("No fetches found")
		return nil
	}

	fmt.Printf("%-26s %-10s %-9s %-40s %-30s\n", "RUN", "IMAGE", "STATUS", "VOLUME", "ERROR")
	fmt.Println("---------------------------------------------------------------------------------------------------------------------")

	for _, f := range fetches {
		problem := "-"
		if f.ErrorKind != "" {
			problem = f.ErrorKind
		}

		fmt.Printf("%-26s %-10s %-9s %-40s %-30s\n",
			f.RunID, orDash(f.ImageID), f.Status, orDash(f.VolumeName), problem)
	}

	return nil
}

func listUploadedVolumes() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("--exports needs s3-bucket")
	}

	ctx := context.Background()
	client, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	keys, err := client.ListObjects(ctx, cfg.S3Prefix)
	if err != nil {
		return errors.Wrap(err, "list objects failed")
	}

	if len(keys) == 0 {
		fmt.Printf("No volumes under s3://%s/%s\n", client.Bucket(), cfg.S3Prefix)
		return nil
	}
	for _, key := range keys {
		fmt.Printf("s3://%s/%s\n", client.Bucket(), key)
	}
	return nil
}
