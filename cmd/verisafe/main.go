package main

import (
	"fmt"
	"os"

	"github.com/layer-3/verisafe/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	devnetMode bool
	verbose    bool
	logFile    string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "verisafe",
	Short: "VeriSafe - privacy-preserving age verification with FHE",
	Long: `VeriSafe proves that you are at least 18 without revealing your age.

Your age is encrypted locally, compared on-chain by the VeriSafe contract using
Fully Homomorphic Encryption, and only the encrypted yes/no answer is decrypted
for you.

Run without arguments to start the terminal interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		// The terminal interface owns the screen, so it logs to a file.
		path := logFile
		if path == "" && (cmd == uiCmd || !cmd.HasParent()) {
			path = "verisafe.log"
		}
		logger, err = newLogger(verbose, path)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runUI,
}

func newLogger(verbose bool, path string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if path != "" {
		config.OutputPaths = []string{path}
		config.ErrorOutputPaths = []string{path}
	}
	return config.Build()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&devnetMode, "devnet", false, "Use the in-process devnet instead of Sepolia")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	verifyCmd.Flags().StringVar(&verifyAge, "age", "", "Age to verify (required)")
	verifyCmd.Flags().BoolVar(&verifyQR, "qr", false, "Print a QR code linking to the transaction")
	_ = verifyCmd.MarkFlagRequired("age")

	deployCmd.Flags().StringSliceVar(&deployTags, "tags", nil, "Only run deployment tasks with these tags")

	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(deployCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
