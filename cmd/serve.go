package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"streetsight/internal/aggregator"
	"streetsight/internal/config"
	"streetsight/internal/detector"
	"streetsight/internal/geocode"
	"streetsight/internal/model"
	"streetsight/internal/notify"
	"streetsight/internal/pipeline"
	"streetsight/internal/server"
	"streetsight/internal/storage"
	"streetsight/internal/streetview"
	"streetsight/pkg/log"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start streetsight server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	conf, err := config.InitConfig(configFile)
	if err != nil {
		logrus.Fatal("initConfig error, ", err.Error())
	}

	logrus.Infof("config: %+v", conf)

	db, err := model.InitDB(conf.DB)
	if err != nil {
		logrus.Fatal("failed to init database", err)
	}
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	store, err := storage.NewStore(conf.S3)
	if err != nil {
		logrus.Fatalf("failed to init blob store: %s", err.Error())
	}

	cache, err := geocode.NewCache(conf.CacheDir, log.NewLogger().WithField("component", "geocode-cache"))
	if err != nil {
		logrus.Fatalf("failed to open geocode cache: %s", err.Error())
	}
	defer cache.Close()

	registry, err := detector.BuildRegistry(conf)
	if err != nil {
		logrus.Fatalf("failed to build detector registry: %s", err.Error())
	}
	logrus.Infof("registered detectors: %v", registry.Names())

	notifier, err := notify.NewPublisher(conf.NSQ, log.NewLogger().WithField("component", "notify"))
	if err != nil {
		logrus.Fatalf("failed to create NSQ publisher: %s", err.Error())
	}
	defer notifier.Stop()

	pipe := pipeline.New(
		conf,
		streetview.NewClient(conf.Google),
		geocode.NewClient(conf.Google, cache),
		store,
		aggregator.New(db),
		notifier,
	)

	srv, err := server.NewServer(ctx, conf, db, pipe, registry)
	if err != nil {
		logrus.Fatalf("newServer error, %s", err.Error())
		return
	}
	go srv.Start()

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	<-termChan
	logrus.Infof("server is shutting down...")
	srv.Shutdown()
	cancelFunc()
}
