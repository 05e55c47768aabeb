package command

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardenterm/warden"
	"github.com/wardenterm/warden/internal/logging"
	"github.com/wardenterm/warden/ollama"
	"github.com/wardenterm/warden/pty"
	"github.com/wardenterm/warden/risk"
	"github.com/wardenterm/warden/server"
)

var (
	flagAddr       string
	flagOllamaHost string
	flagModel      string
	flagShell      string
	flagLogFile    string
	flagSentryDSN  string
	flagDebug      bool
)

const shutdownGrace = 5 * time.Second

func Root() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wardend",
		Short: "Terminal backend with an AI command pre-flight",
		Long: `Wardend hosts the PTY sessions of the Warden desktop shell and
pre-screens shell commands with a local language model before the
shell runs them. The GUI connects over a token-guarded local bridge.`,
		RunE: rootRunE,
	}

	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "127.0.0.1:8329", "bridge listen address")
	rootCmd.PersistentFlags().StringVar(&flagOllamaHost, "ollama-host", warden.DefaultOllamaHost, "ollama server URL")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", warden.DefaultModel, "default model")
	rootCmd.PersistentFlags().StringVar(&flagShell, "shell", "", "shell to spawn (defaults to $SHELL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "log file path (defaults to the XDG state dir)")
	rootCmd.PersistentFlags().StringVar(&flagSentryDSN, "sentry-dsn", "", "sentry DSN for error reporting")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug logging")

	viper.SetEnvPrefix("WARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(attachCmd())

	return rootCmd
}

func rootRunE(c *cobra.Command, args []string) error {
	logPath := viper.GetString("log-file")
	if logPath == "" {
		logPath = logging.DefaultLogPath()
	}

	opts := []logging.Option{
		logging.Console(),
		logging.File(logPath),
		logging.Sentry(viper.GetString("sentry-dsn")),
	}
	if viper.GetBool("debug") {
		opts = append(opts, logging.Debug())
	}
	logger, err := logging.New(opts...)
	if err != nil {
		return err
	}
	defer logger.Close()

	client := ollama.NewClient(viper.GetString("ollama-host"), viper.GetString("model"))
	if err := client.WaitReady(c.Context(), 5); err != nil {
		// the bridge still serves terminals without a model
		logger.Warn("ollama not reachable, assistant features degraded", "error", err)
	}

	registry := pty.NewRegistry(warden.TermType)

	srv := &server.Server{
		Registry: registry,
		Ollama:   client,
		Pipeline: risk.NewPipeline(client, logger.Logger),
		Logger:   logger,
		Notifier: server.DesktopNotifier{},
	}

	addr := viper.GetString("addr")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	// the GUI shell reads these to find and authenticate the bridge
	fmt.Printf("%s=%s\n", warden.BridgeAddrEnvVar, ln.Addr().String())
	fmt.Printf("%s=%s\n", warden.BridgeTokenEnvVar, srv.Token())

	logger.Info("bridge listening", "addr", ln.Addr().String())

	var g run.Group
	{
		g.Add(func() error {
			return srv.Serve(ln)
		}, func(err error) {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}
	{
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		g.Add(func() error {
			sig := <-sigs
			return fmt.Errorf("received signal %s", sig)
		}, func(err error) {
			signal.Stop(sigs)
			close(sigs)
		})
	}

	return g.Run()
}
