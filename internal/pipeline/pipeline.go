// Package pipeline trains, evaluates, exports, reloads and queries the
// LeNet MNIST classifier.
//
// Stages share state only through the workspace, the parameter table and
// the artifact files. Each stage is usable on its own; Run chains them.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/config"
	"github.com/born-ml/lenet/internal/device"
	"github.com/born-ml/lenet/internal/metrics"
	"github.com/born-ml/lenet/internal/mnist"
	"github.com/born-ml/lenet/internal/model"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/optim"
	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/predictor"
	"github.com/born-ml/lenet/internal/store"
	"github.com/born-ml/lenet/internal/workspace"
)

// Net names.
const (
	TrainNet  = "mnist_train"
	TestNet   = "mnist_test"
	DeployNet = "mnist_deploy"
)

// Pipeline runs the stages against one workspace.
type Pipeline struct {
	cfg    *config.Config
	ws     *workspace.Workspace
	logger *slog.Logger
	out    io.Writer
	runID  string
}

// Classification is the result of a single inference.
type Classification struct {
	Probs    []float32
	Class    int
	Expected int32
}

// Correct reports whether the predicted class matches the label.
func (c Classification) Correct() bool { return int32(c.Class) == c.Expected }

// Result summarizes a full run.
type Result struct {
	RunID        string
	TestAccuracy float64
	Artifacts    []predictor.Artifact
	Inference    *Classification
}

// New creates a pipeline. Results are printed to out; progress goes to logger.
func New(cfg *config.Config, logger *slog.Logger, out io.Writer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	par := parallel.DefaultConfig()
	if cfg.Workers > 0 {
		par = parallel.WithWorkers(cfg.Workers)
	}
	ws := workspace.New(workspace.Options{Logger: logger, Seed: cfg.Seed, Parallel: &par})
	return &Pipeline{cfg: cfg, ws: ws, logger: logger, out: out, runID: runID}
}

// RunID returns the identifier stamped into logs and exported nets.
func (p *Pipeline) RunID() string { return p.runID }

// Workspace returns the pipeline's workspace.
func (p *Pipeline) Workspace() *workspace.Workspace { return p.ws }

// Close releases the workspace.
func (p *Pipeline) Close() error { return p.ws.Close() }

// Train builds the training net, initializes parameters and runs the
// configured number of steps. It returns the trained parameter table.
func (p *Pipeline) Train(ctx context.Context) (*model.ParamTable, error) {
	h := model.New(model.Options{Name: TrainNet, InitParams: true, ArgScope: model.DefaultArgScope()})
	data, label := model.AddInput(h, p.cfg.TrainBatch, p.cfg.TrainDBPath(), p.cfg.DBType)
	softmax := model.AddLeNet(h, data)
	if _, err := model.AddTrainingOperators(h, softmax, label, p.cfg.SGD()); err != nil {
		return nil, fmt.Errorf("build training net: %w", err)
	}
	h.Print("accuracy", int64(p.cfg.LogEvery))
	h.Print("loss", int64(p.cfg.LogEvery))

	if err := p.ws.RunNetOnce(h.InitNet); err != nil {
		return nil, fmt.Errorf("init training: %w", err)
	}
	if err := p.ws.CreateNet(h.Net, true); err != nil {
		return nil, fmt.Errorf("create training net: %w", err)
	}

	total := p.cfg.TotalSteps()
	p.logger.Info("training",
		"epochs", p.cfg.Epochs,
		"steps", total,
		"batch", p.cfg.TrainBatch,
		"params", h.Params().NumElements(),
	)

	sgd := p.cfg.SGD()
	var window metrics.Window
	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(p.cfg.LogEvery, total-done)
		start := time.Now()
		if err := p.ws.RunNet(TrainNet, n); err != nil {
			return nil, err
		}
		done += n

		loss, err := p.scalar("loss")
		if err != nil {
			return nil, err
		}
		acc, err := p.scalar("accuracy")
		if err != nil {
			return nil, err
		}
		window.Record(p.cfg.TrainBatch, n, time.Since(start), loss, acc)
		snap := window.Snapshot()
		p.logger.Info("train",
			"step", done,
			"loss", snap.LastLoss,
			"accuracy", snap.LastAccuracy,
			"lr", optim.LearningRateAt(sgd.Policy, sgd.BaseLR, sgd.Gamma, sgd.StepSize, int64(done)),
			"images_per_sec", fmt.Sprintf("%.1f", snap.ImagesPerSec),
			"step_ms", fmt.Sprintf("%.2f", snap.AvgStepMS),
		)
	}
	return h.Params(), nil
}

// Evaluate runs the test net bound to params for the configured number of
// batches and returns the mean accuracy.
func (p *Pipeline) Evaluate(ctx context.Context, params *model.ParamTable) (float64, error) {
	h := model.New(model.Options{Name: TestNet, Params: params, ArgScope: model.DefaultArgScope()})
	data, label := model.AddInput(h, p.cfg.TestBatch, p.cfg.TestDBPath(), p.cfg.DBType)
	h.Accuracy(model.AddLeNet(h, data), label, "accuracy")
	if err := h.Err(); err != nil {
		return 0, fmt.Errorf("build test net: %w", err)
	}
	if err := p.ws.RunNetOnce(h.InitNet); err != nil {
		return 0, fmt.Errorf("init test: %w", err)
	}
	if err := p.ws.CreateNet(h.Net, true); err != nil {
		return 0, fmt.Errorf("create test net: %w", err)
	}

	accs := make([]float64, 0, p.cfg.TestIters)
	for range p.cfg.TestIters {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := p.ws.RunNet(TestNet, 1); err != nil {
			return 0, err
		}
		acc, err := p.scalar("accuracy")
		if err != nil {
			return 0, err
		}
		accs = append(accs, acc)
	}
	mean := metrics.Mean(accs)
	p.logger.Info("evaluated", "batches", len(accs), "accuracy", mean)
	return mean, nil
}

// Export writes the init and predict artifacts for params to the output
// directory.
func (p *Pipeline) Export(params *model.ParamTable) ([]predictor.Artifact, error) {
	h := model.New(model.Options{Name: DeployNet, Params: params, ArgScope: model.DefaultArgScope()})
	model.AddLeNet(h, "data")
	if err := h.Err(); err != nil {
		return nil, fmt.Errorf("build deploy net: %w", err)
	}
	initNet, predictNet, err := predictor.Export(p.ws, h.Net, h.Params().Names())
	if err != nil {
		return nil, err
	}
	predictor.Stamp(p.runID, initNet, predictNet)

	artifacts, err := predictor.SaveFiles(p.cfg.OutputDir, initNet, predictNet)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		p.logger.Info("exported", "path", a.Path, "bytes", a.Size, "sha256", a.SHA256)
	}
	return artifacts, nil
}

// Reload clears the workspace and loads the exported artifacts into it.
func (p *Pipeline) Reload() (*netdef.NetDef, error) {
	net, err := predictor.LoadFiles(p.ws, p.cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	p.logger.Info("reloaded", "net", net.Name, "ops", len(net.Op), "blobs", len(p.ws.Blobs()))
	return net, nil
}

// InferSingle classifies the configured record of the test store with net.
// The record is decoded outside the graph and fed as a [1,1,28,28] tensor.
func (p *Pipeline) InferSingle(net *netdef.NetDef) (*Classification, error) {
	db, err := store.OpenType(p.cfg.TestDBPath(), p.cfg.DBType)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rec, err := db.Record(p.cfg.InferIndex)
	if err != nil {
		return nil, err
	}
	x, err := mnist.ToTensor(rec.Image)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", p.cfg.InferIndex, err)
	}
	if err := p.ws.FeedBlob(net.ExternalInput[0], x); err != nil {
		return nil, err
	}
	if err := p.ws.RunNet(net.Name, 1); err != nil {
		return nil, err
	}
	y, err := p.ws.FetchBlob(net.ExternalOutput[0])
	if err != nil {
		return nil, err
	}
	c := &Classification{Probs: y.Float32(), Class: cpu.ArgMax(y.Float32()), Expected: rec.Label}
	fmt.Fprintln(p.out, "Output:", c.Probs)
	fmt.Fprintln(p.out, "Class:", c.Class, "expected:", c.Expected)
	return c, nil
}

// Run executes every stage in order.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.cfg.ProbeDevice {
		p.logger.Info("device", "cpu", device.Probe().String())
	}
	res := &Result{RunID: p.runID}

	fmt.Fprintf(p.out, "\ntraining for %d epochs\n", p.cfg.Epochs)
	params, err := p.Train(ctx)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	res.TestAccuracy, err = p.Evaluate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	fmt.Fprintf(p.out, "test_accuracy: %f\n", res.TestAccuracy)

	if p.cfg.SkipExport {
		return res, nil
	}
	res.Artifacts, err = p.Export(params)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	net, err := p.Reload()
	if err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	if p.cfg.SkipInfer {
		return res, nil
	}
	res.Inference, err = p.InferSingle(net)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	return res, nil
}

// scalar fetches a one-element float blob.
func (p *Pipeline) scalar(name string) (float64, error) {
	t, err := p.ws.Tensor(name)
	if err != nil {
		return 0, err
	}
	v := t.Float32()
	if len(v) != 1 {
		return 0, fmt.Errorf("blob %q is %s, want a float32 scalar", name, t)
	}
	return float64(v[0]), nil
}
