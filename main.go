package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"

	"armcam/config"
	"armcam/metrics"
	"armcam/ros"
	"armcam/video"
	"armcam/video/sink"
)

var (
	configPath = flag.String("config", "", "JSON configuration file. Defaults are used if empty.")
	port       = flag.Int("port", 8080, "Port to serve /metrics and the /mjpeg preview on; 0 disables.")
	verbose    = flag.Bool("v", false, "Enable debug logging.")
)

func init() {
	// HighGUI windows must be driven from the thread that created them.
	runtime.LockOSThread()
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := config.Load(ctx, *configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()

	client, err := ros.Dial(ctx, cfg.BridgeURI)
	if err != nil {
		return err
	}
	defer client.Close()

	ropts := video.DefaultRelayOptions()
	ropts.InputTopic = cfg.InputTopic
	ropts.OutputTopic = cfg.OutputTopic
	ropts.OutputQueueSize = cfg.OutputQueueSize
	ropts.Republish = func() bool {
		return config.Get().Republish
	}
	relay, err := video.NewRelay(client, ropts)
	if err != nil {
		return err
	}
	defer relay.Close()

	mjpegServer := sink.NewMJPEGServer()
	preview, err := mjpegServer.NewStream("default")
	if err != nil {
		return err
	}
	defer preview.Close()

	if *port != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/mjpeg", mjpegServer)
		access := log.StandardLogger().Writer()
		defer access.Close()
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", *port),
			Handler: handlers.LoggingHandler(access, mux),
		}
		go func() {
			log.Infof("Serving metrics and preview on port %d", *port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("HTTP server failed: %v", err)
			}
		}()
		defer srv.Close()
	}

	go func() {
		select {
		case <-client.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	var screen video.Screen
	if cfg.WindowName != "" {
		w := sink.NewWindow(cfg.WindowName)
		defer w.Close()
		screen = w
	} else {
		log.Infof("No window configured, running headless")
	}

	dopts := video.DefaultDisplayOptions()
	dopts.MaxFPS = cfg.MaxFPS
	dopts.QuitKey = cfg.QuitKey[0]
	dopts.StatusLine = cfg.StatusLine
	if cfg.Overlay {
		dopts.Overlay = relay.Topic()
	}
	d := video.NewDisplay(relay, screen, dopts)
	d.Sinks = append(d.Sinks, preview)

	err = d.Run(ctx)
	lost := client.Err()
	switch {
	case err == nil:
		return nil
	case lost != nil && !errors.Is(lost, ros.ErrClosed):
		return fmt.Errorf("rosbridge connection lost: %w", lost)
	case errors.Is(err, context.Canceled):
		log.Infof("Shutting down")
		return nil
	default:
		return err
	}
}
