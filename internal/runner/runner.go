// Package runner drives the capture-classify-actuate loop over image files.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/rvm-classifier/internal/actuator"
	"github.com/Brownie44l1/rvm-classifier/internal/frames"
	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

// Classifier is the part of model.Classifier the runner needs.
type Classifier interface {
	Classify(img image.Image) (model.Result, error)
}

// Record is one JSON line written per classified frame.
type Record struct {
	RunID         string           `json:"run_id"`
	File          string           `json:"file"`
	TopPrediction string           `json:"top_prediction"`
	Categories    []model.Category `json:"categories"`
	FileSize      int64            `json:"filesize"`
	FileIOTime    time.Duration    `json:"fileiotime"`
	ComputeTime   time.Duration    `json:"computetime"`
}

// Runner classifies frames one at a time and forwards each top prediction
// to the actuator.
type Runner struct {
	RunID      string
	Classifier Classifier
	Actuator   actuator.Actuator

	// Console receives the human readable prediction lines.
	Console io.Writer
	// Results receives one JSON Record per frame when set.
	Results io.Writer

	// seen maps a path to the modification time it was last classified at.
	seen map[string]time.Time
}

// Pass classifies every frame under input that changed since the previous
// pass. Frames that fail to read or classify are logged and skipped; an
// actuator or output failure stops the pass.
func (r *Runner) Pass(ctx context.Context, input string) (int, error) {
	if r.seen == nil {
		r.seen = make(map[string]time.Time)
	}
	paths, err := frames.List(input)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return done, nil
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if at, ok := r.seen[path]; ok && at.Equal(info.ModTime()) {
			continue
		}
		r.seen[path] = info.ModTime()

		ok, err := r.classify(ctx, path)
		if err != nil {
			return done, err
		}
		if ok {
			done++
		}
	}
	return done, nil
}

func (r *Runner) classify(ctx context.Context, path string) (bool, error) {
	log := logrus.WithFields(logrus.Fields{"run_id": r.RunID, "file": path})

	t := time.Now()
	frame, err := frames.Read(path)
	if err != nil {
		log.WithError(err).Error("error on file read")
		return false, nil
	}
	ioTime := time.Since(t)

	t = time.Now()
	result, err := r.Classifier.Classify(frame.Image)
	if err != nil {
		log.WithError(err).Error("error in classification")
		return false, nil
	}
	computeTime := time.Since(t)

	if r.Console != nil {
		for _, c := range result.Categories {
			fmt.Fprintf(r.Console, "Prediction: %s, Probability: %.2f\n", c.Label, c.Score)
		}
		fmt.Fprintf(r.Console, "Final prediction: %s\n", result.TopPrediction)
	}

	if r.Actuator != nil {
		if err := r.Actuator.SetAngle(ctx, result.TopPrediction); err != nil {
			return false, fmt.Errorf("actuator: %w", err)
		}
	}

	if r.Results != nil {
		rec := Record{
			RunID:         r.RunID,
			File:          path,
			TopPrediction: result.TopPrediction,
			Categories:    result.Categories,
			FileSize:      frame.Size,
			FileIOTime:    ioTime,
			ComputeTime:   computeTime,
		}
		if err := json.NewEncoder(r.Results).Encode(rec); err != nil {
			return false, fmt.Errorf("write result: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"top_prediction": result.TopPrediction,
		"compute_time":   computeTime,
	}).Debug("frame classified")
	return true, nil
}

// Loop runs Pass every interval until ctx is cancelled. With once set it
// runs a single pass.
func (r *Runner) Loop(ctx context.Context, input string, interval time.Duration, once bool) error {
	for {
		n, err := r.Pass(ctx, input)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"run_id": r.RunID, "frames": n}).Debug("pass complete")
		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
