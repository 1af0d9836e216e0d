package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/rvm-classifier/internal/config"
	"github.com/Brownie44l1/rvm-classifier/internal/engine/onnx"
	_ "github.com/Brownie44l1/rvm-classifier/internal/engine/tflite"
	"github.com/Brownie44l1/rvm-classifier/internal/runner"
)

type cliOptions struct {
	configPath        string
	model             string
	labels            string
	backend           string
	maxResults        int
	numThreads        int
	enableAccelerator bool
	input             string
	out               string
	interval          time.Duration
	once              bool

	set map[string]bool
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		logrus.Fatalf("classify: %v", err)
	}
}

func parseFlags() cliOptions {
	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "config.yaml", "Path to the YAML config")
	flag.StringVar(&opts.model, "model", "modelPort.tflite", "Path of the image classification model")
	flag.StringVar(&opts.labels, "labels", "labels.txt", "Label file (one label per line) or model metadata JSON")
	flag.StringVar(&opts.backend, "backend", "", "Inference backend: tflite or onnx (default: from model extension)")
	flag.IntVar(&opts.maxResults, "maxResults", 3, "Max of classification results")
	flag.IntVar(&opts.numThreads, "numThreads", 4, "Number of CPU threads to run the model")
	flag.BoolVar(&opts.enableAccelerator, "enableAccelerator", false, "Whether to run the model on the accelerator (EdgeTPU or CUDA)")
	flag.StringVar(&opts.input, "input", "/home/pi/Pictures/image.jpg", "Image file or directory of captured frames")
	flag.StringVar(&opts.out, "out", "", "Append JSON-lines results to this file")
	flag.DurationVar(&opts.interval, "interval", 500*time.Millisecond, "Delay between passes over the input")
	flag.BoolVar(&opts.once, "once", false, "Classify the input once and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts
}

// apply lets explicitly passed flags override the config file.
func (o cliOptions) apply(cfg *config.Config) {
	if o.set["model"] {
		cfg.Model.Path = o.model
		if !o.set["backend"] {
			cfg.Model.Backend = ""
		}
	}
	if o.set["labels"] {
		cfg.Model.Labels = o.labels
	}
	if o.set["backend"] {
		cfg.Model.Backend = o.backend
	}
	if o.set["maxResults"] {
		cfg.Classifier.MaxResults = o.maxResults
	}
	if o.set["numThreads"] {
		cfg.Classifier.NumThreads = o.numThreads
	}
	if o.set["enableAccelerator"] {
		cfg.Classifier.EnableAccelerator = o.enableAccelerator
	}
	cfg.ApplyDefaults()
}

func run(opts cliOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.ConfigureLogging()

	runID := uuid.New().String()
	log := logrus.WithField("run_id", runID)

	log.WithFields(logrus.Fields{
		"model":   cfg.Model.Path,
		"backend": cfg.Model.Backend,
	}).Info("loading model")
	classifier, err := cfg.NewClassifier()
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}
	defer onnx.Shutdown()
	defer classifier.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	act, closeActuator, err := cfg.NewActuator(ctx)
	if err != nil {
		return fmt.Errorf("init actuator: %w", err)
	}
	defer closeActuator()

	r := &runner.Runner{
		RunID:      runID,
		Classifier: classifier,
		Actuator:   act,
		Console:    os.Stdout,
	}
	if opts.out != "" {
		if err := os.MkdirAll(filepath.Dir(opts.out), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(opts.out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open results: %w", err)
		}
		defer f.Close()
		r.Results = f
	}

	t0 := time.Now()
	if err := r.Loop(ctx, opts.input, opts.interval, opts.once); err != nil {
		return err
	}
	log.Info("all done: ", time.Since(t0))
	return nil
}
