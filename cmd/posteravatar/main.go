// Command posteravatar runs the poster character: a desktop viewer with terminal chat,
// the chat API it talks to, and an asset inspector.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/posteravatar/internal/config"
	"github.com/normanking/posteravatar/internal/logging"
)

// GLFW and GL calls must stay on the main thread.
func init() {
	runtime.LockOSThread()
}

var (
	version = "0.1.0"
	cfgPath string
	verbose bool

	cfg *config.Config
	log *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "posteravatar",
		Short: "A talking 3D character trapped in a poster",
		Long: `posteravatar renders an animated 3D character and lets you chat with it.

Open the viewer and chat:   posteravatar view
Serve the chat API only:    posteravatar serve
Inspect a character asset:  posteravatar inspect model.glb`,
		PersistentPreRunE:  initRuntime,
		PersistentPostRunE: closeRuntime,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.posteravatar/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("posteravatar v%s\n", version)
		},
	})
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(viewCmd())
	rootCmd.AddCommand(inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initRuntime(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logging.LogLevel(cfg.Log.Level)
	if verbose {
		level = logging.LevelDebug
	}
	log, err = logging.New(&logging.Config{
		LogDir:  cfg.Log.Dir,
		Level:   level,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	return nil
}

func closeRuntime(cmd *cobra.Command, args []string) error {
	if log != nil {
		return log.Close()
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func zlog() zerolog.Logger {
	if log == nil {
		return zerolog.Nop()
	}
	return log.Zerolog()
}

// component returns a logger for the command's own messages.
func component(name string) zerolog.Logger {
	if log == nil {
		return zerolog.Nop()
	}
	return log.Component(name)
}
