package commands

import (
	"fmt"
	"os"

	"github.com/cecad-imaging/omerowatch/internal/config"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "omerowatch",
	Short: "Fetch OMERO images named by descriptor files into volumes",
	Long: `Watches a directory for JSON descriptors of the form {"id_image": <id>},
fetches every channel of the named image from an OMERO server, stacks them
into one multi-channel volume and writes it out as NRRD.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "config load failed")
		}
		return setupLogging(cfg)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("watch-dir", ".artifacts/inbox", "Directory watched for descriptors")
	flags.String("settings-path", ".artifacts/settings.yaml", "OMERO connection settings file")
	flags.String("sqlite-path", ".artifacts/fetches.db", "SQLite fetch ledger path")
	flags.String("host-kind", config.HostFile, "Where volumes go: file or s3")
	flags.String("output-dir", ".artifacts/volumes", "Output directory for the file host")
	flags.Bool("nrrd-gzip", true, "Gzip NRRD voxel data")
	flags.String("s3-bucket", "", "S3 bucket for the s3 host")
	flags.String("s3-region", "us-east-1", "S3 region")
	flags.String("s3-prefix", "volumes/", "Key prefix for uploaded volumes")
	flags.String("s3-endpoint", "", "S3-compatible endpoint URL")
	flags.String("scheme", "https", "OMERO.web scheme")
	flags.Duration("connect-timeout", config.DefaultConnectTimeout, "Dial timeout")
	flags.Duration("read-timeout", config.DefaultReadTimeout, "Per-request timeout")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification")
	flags.String("plane-source", "pixel-buffer", "Plane source: pixel-buffer (raw values) or render (8-bit display values)")
	flags.Duration("settle-delay", config.DefaultSettleDelay, "Quiet period before a scan")
	flags.Bool("scan-on-start", true, "Process descriptors already present at startup")
	flags.Int64("max-descriptor-size", 64*1024, "Max descriptor size in bytes")
	flags.Int64("max-volume-bytes", 2*1024*1024*1024, "Max voxel buffer size in bytes")
	flags.String("log-file", "", "Rotate logs into this file instead of stdout")
	flags.Int("log-max-size", 100, "Max log file size in megabytes")
	flags.Int("log-max-age", 30, "Max log file age in days")
	flags.String("log-level", "info", "debug, info, warn or error")

	flags.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}
