package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"campusgate/internal/app"
	"campusgate/internal/config"
	"campusgate/internal/faceclient"
	"campusgate/internal/gate"
	"campusgate/internal/queue"
)

// DecisionEvent is published on the result queue for each processed capture.
type DecisionEvent struct {
	JobID      string         `json:"job_id"`
	TerminalID string         `json:"terminal_id"`
	Decision   *gate.Decision `json:"decision,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Worker consumes capture jobs, asks the face service for a descriptor and
// runs the gate decision.
func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "campusgate-worker ", log.LstdFlags)
	if err := checkQueueBackend(cfg.QueueBackend); err != nil {
		logger.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.DescriptorDim)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			logger.Printf("WARNING: face service not available: %v", err)
		} else {
			logger.Println("face service connected")
		}
	}

	messages, err := a.Scans.Consume(ctx)
	if err != nil {
		logger.Fatalf("queue consume init failed: %v", err)
	}

	logger.Println("worker started, waiting for captures...")
	for msg := range messages {
		if msg.Type != queue.TypeScan {
			continue
		}
		var job queue.ScanJob
		if err := msg.Decode(&job); err != nil {
			logger.Printf("bad scan job: %v", err)
			continue
		}
		ev := process(ctx, a.Engine, face, job, logger)
		out, err := queue.NewMessage(queue.TypeDecision, ev)
		if err != nil {
			logger.Printf("encode decision for %s: %v", job.ID, err)
			continue
		}
		if err := a.Results.Publish(context.WithoutCancel(ctx), out); err != nil {
			logger.Printf("publish decision for %s: %v", job.ID, err)
		}
	}

	logger.Println("worker stopped")
}

// checkQueueBackend rejects backends the API cannot publish to from another
// process. An in-memory queue would leave the worker idle forever.
func checkQueueBackend(backend string) error {
	if backend != "redis" {
		return fmt.Errorf("QUEUE_BACKEND %q cannot be shared with the API, the worker needs redis", backend)
	}
	return nil
}

func process(ctx context.Context, engine *gate.Engine, face *faceclient.Client, job queue.ScanJob, logger *log.Logger) DecisionEvent {
	ev := DecisionEvent{JobID: job.ID, TerminalID: job.TerminalID}

	res, err := face.Embed(ctx, job.ImageURL)
	if err != nil {
		if errors.Is(err, faceclient.ErrNoFace) {
			logger.Printf("job %s: no face in capture", job.ID)
		} else {
			logger.Printf("job %s: face embed failed: %v", job.ID, err)
		}
		ev.Error = err.Error()
		return ev
	}

	d, err := engine.Decide(ctx, gate.Scan{TerminalID: job.TerminalID, Descriptor: res.Descriptor, At: job.CapturedAt})
	if err != nil {
		logger.Printf("job %s: decide failed: %v", job.ID, err)
		ev.Error = err.Error()
		return ev
	}
	logger.Printf("job %s: %s %s (faces %d, detection %.2f)", job.ID, d.Status, d.Reason, res.FacesDetected, res.Score)
	ev.Decision = &d
	return ev
}
