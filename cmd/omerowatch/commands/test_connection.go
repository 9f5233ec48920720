package commands

import (
	"context"
	"fmt"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/cecad-imaging/omerowatch/pkg/settings"
	"github.com/spf13/cobra"
)

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check the saved OMERO settings by opening and closing a session",
	RunE:  runTestConnection,
}

func init() {
	rootCmd.AddCommand(testConnectionCmd)
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn := settings.NewStore(cfg.SettingsPath).Load()
	if !conn.IsReady() {
		return fmt.Errorf("connection settings incomplete in %s, run 'omerowatch connection set'", cfg.SettingsPath)
	}

	client := omero.NewClient(newConnector(cfg))
	ok, err := client.TestConnection(context.Background(), conn)
	if !ok {
		fmt.Printf("❌ Connection to %s failed\n", conn)
		if err != nil {
			return errors.Wrap(err, "test connection failed")
		}
		return fmt.Errorf("test connection failed")
	}

	fmt.Printf("✅ Connected to %s\n", conn)
	return nil
}
