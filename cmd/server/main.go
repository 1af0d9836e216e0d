package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/rvm-classifier/internal/config"
	"github.com/Brownie44l1/rvm-classifier/internal/engine/onnx"
	_ "github.com/Brownie44l1/rvm-classifier/internal/engine/tflite"
	"github.com/Brownie44l1/rvm-classifier/internal/handlers"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg.ConfigureLogging()

	logrus.Infof("Loading model from: %s", cfg.Model.Path)

	classifier, err := cfg.NewClassifier()
	if err != nil {
		logrus.Fatalf("Failed to initialize classifier: %v", err)
	}
	defer onnx.Shutdown()
	defer classifier.Close()

	mux := http.NewServeMux()
	handlers.NewHandler(classifier).Routes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("Server starting on port %s", cfg.Server.Port)
		logrus.Infof("Classes: %v", classifier.Labels())
		logrus.Info("Endpoints:")
		logrus.Info("  GET  /health        - Health check")
		logrus.Info("  GET  /labels        - Label table and input shape")
		logrus.Info("  POST /predict       - Preprocessed tensor prediction")
		logrus.Info("  POST /predict/image - Predict from image upload")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logrus.Errorf("Server failed: %v", err)
		return
	}
	logrus.Info("Server stopped")
}
