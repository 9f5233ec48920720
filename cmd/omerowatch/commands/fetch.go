package commands

import (
	"context"
	"fmt"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <image-id>",
	Short: "Fetch one image by id without a descriptor",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := omero.ImageID(args[0])

	rt, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	res := rt.pipeline.FetchByID(ctx, id, "cli")
	if res.Err != nil {
		return errors.Wrap(res.Err, "fetch failed")
	}

	fmt.Printf("✅ Image %s loaded as %s (%s)\n", id, res.Volume.Name(), res.Volume.ID())
	return nil
}
