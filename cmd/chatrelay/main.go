// Command chatrelay runs the communication relay: the control-plane TCP
// server and the audio and video UDP media relays.
package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatrelay"
	"github.com/opd-ai/chatrelay/config"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	opts := chatrelay.NewOptions()
	opts.TCPPort = cfg.TCPPort
	opts.AudioPort = cfg.AudioPort
	opts.VideoPort = cfg.VideoPort
	opts.Channels = cfg.Channels
	opts.HistoryLimit = cfg.HistoryLimit

	relay, err := chatrelay.New(opts)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Error("Relay stopped")
	}
}
