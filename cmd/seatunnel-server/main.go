package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/client"
	"github.com/voidking/incubator-seatunnel/config"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
	"github.com/voidking/incubator-seatunnel/server"
)

func main() {
	cmd := &cobra.Command{
		Use:           "seatunnel-server",
		Short:         "coordinator server of the data pipeline engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		// The config owns the full flag set, cobra only dispatches.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(args)
		},
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "seatunnel-server:", err)
		os.Exit(2)
	}
}

func runServer(args []string) error {
	cfg := config.NewConfig()
	err := cfg.Parse(args)
	switch errors.Cause(err) {
	case nil:
	case pflag.ErrHelp:
		return nil
	default:
		return err
	}

	if err := log.InitLogger(&log.Config{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Format: cfg.LogFormat,
	}); err != nil {
		return errors.Trace(err)
	}
	log.L().Info("coordinator server starting", zap.String("config", cfg.String()))

	kv, err := statestore.NewEtcdStore(cfg.StateStoreConfig())
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.L().Warn("closing state store failed", log.ShortError(err))
		}
	}()

	srv := server.NewServer(cfg, kv, client.NewHTTPTaskOperator(cfg.WorkerOpTimeout()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sc
		log.L().Info("got signal, shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	err = srv.Run(ctx)
	if err != nil {
		log.L().Error("coordinator server exited abnormally", log.ShortError(err))
		return err
	}
	log.L().Info("coordinator server exited")
	return nil
}
