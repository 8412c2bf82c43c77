package daemon

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seedworks/vrf-oracle/daemon"
	"github.com/seedworks/vrf-oracle/tools"
)

var (
	configFile  string // The config file to read settings from
	logLevelEnv = strings.ToLower(os.Getenv("VRF_LOG_LEVEL"))
)

func init() {
	tools.SetLogger(logLevelEnv)

	RunCmd.Flags().StringVar(&configFile, "config", "", "JSON config file to use (required)")
	tools.MarkFlagRequired(RunCmd.Flags(), "config")
}

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "runs the oracle daemon",
	Run: func(cmd *cobra.Command, args []string) {
		log.Infof("reading config %s", configFile)
		conf, err := daemon.LoadConfig(configFile)
		if err != nil {
			log.Fatalf("failed to load config: %+v", err)
		}

		vrfd, err := daemon.NewFromLoadedConfig(conf)
		if err != nil {
			log.Fatalf("failed to initialize daemon: %+v", err)
		}
		defer vrfd.Ledger.Close()

		if conf.MetricsAddress != "" {
			go daemon.ServeMetrics(conf.MetricsAddress)
		}

		// SIGINT/SIGTERM stop the watcher; rounds already submitted stay
		// in the ledger and are resumed on the next start.
		ctx, cancel := context.WithCancel(context.Background())
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigs
			log.Infof("received %v, shutting down...", sig)
			cancel()
		}()

		log.Info("running...")
		if err := vrfd.Run(ctx); err != nil {
			log.Fatalf("daemon exited with error: %+v", err)
		}
	},
}
