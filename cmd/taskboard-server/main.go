package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/dealerops/taskboard/internal/archival"
	"github.com/dealerops/taskboard/internal/config"
	"github.com/dealerops/taskboard/internal/directory"
	directoryrepo "github.com/dealerops/taskboard/internal/directory/repositoryimpl"
	"github.com/dealerops/taskboard/internal/eventbus"
	"github.com/dealerops/taskboard/internal/filejob"
	"github.com/dealerops/taskboard/internal/notify"
	"github.com/dealerops/taskboard/internal/proofstore"
	"github.com/dealerops/taskboard/internal/pushsubscription"
	pushsubrepo "github.com/dealerops/taskboard/internal/pushsubscription/repositoryimpl"
	"github.com/dealerops/taskboard/internal/shift"
	shiftrepo "github.com/dealerops/taskboard/internal/shift/repositoryimpl"
	"github.com/dealerops/taskboard/internal/task"
	taskrepo "github.com/dealerops/taskboard/internal/task/repositoryimpl"
	"github.com/dealerops/taskboard/internal/verification"
	"github.com/dealerops/taskboard/pkg/clog"
	"github.com/dealerops/taskboard/pkg/storage"

	server "github.com/dealerops/taskboard/internal"
)

var (
	app      = kingpin.New("taskboard-server", "Dealership task workflow and verification engine.")
	runCmd    = app.Command("run", "Run the HTTP server and background sweeps.").Default()
	sweepCmd  = app.Command("sweep", "Run archival sweeps once and exit.")
	sweepOnly = sweepCmd.Arg("sweep", "Sweeps to run (default: all).").
			Enums(archival.SweepNameCompleted, archival.SweepNameOverdue, archival.SweepNamePostShift)
)

// components holds the wired object graph shared by the subcommands.
type components struct {
	env       *config.Env
	store     storage.Storage
	bus       *eventbus.Bus
	worker    *filejob.Worker
	service   *task.Service
	workflow  *verification.Workflow
	policy    *archival.Policy
	settings  *archival.SettingsStore
	resolver  *directory.Resolver
	shifts    shift.Repository
	pushSubs  pushsubscription.Repository
	taskRepo  task.Repository
	responses task.ResponseRepository
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	c, err := wire(env)
	if err != nil {
		slog.Error("failed to wire components", "error", err)
		os.Exit(1)
	}

	switch cmd {
	case sweepCmd.FullCommand():
		runSweep(c)
	default:
		runServer(c)
	}
}

func wire(env *config.Env) (*components, error) {
	var store storage.Storage
	var err error
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
	}
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	worker := filejob.NewWorker(store, env.ProofEnv.FileWorkers)
	locks := task.NewLockRegistry()

	taskRepo := taskrepo.NewYAMLTaskRepository(store)
	assignmentRepo := taskrepo.NewYAMLAssignmentRepository(store)
	responseRepo := taskrepo.NewYAMLResponseRepository(store)
	proofRepo := taskrepo.NewYAMLProofRepository(store)
	sharedProofRepo := taskrepo.NewYAMLSharedProofRepository(store)
	historyRepo := taskrepo.NewYAMLHistoryRepository(store)
	shiftRepo := shiftrepo.NewYAMLShiftRepository(store)
	userRepo := directoryrepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	proofs := proofstore.New(proofRepo, sharedProofRepo, store, worker, proofstore.Limits{
		MaxFilesPerResponse: env.ProofEnv.MaxFilesPerResponse,
		MaxBatchBytes:       env.ProofEnv.MaxBatchBytes,
	}, nil)

	resolver := directory.NewResolver(userRepo)
	gate := shift.NewRepoGate(shiftRepo)
	service := task.NewService(taskRepo, assignmentRepo, responseRepo, historyRepo, proofs, gate, resolver, locks, bus)
	workflow := verification.New(taskRepo, responseRepo, historyRepo, proofs, locks, bus)

	settings := archival.NewSettingsStore(env.ArchivalEnv.SettingsPath, archival.Settings{
		CompletedSweepAt:    env.ArchivalEnv.CompletedSweepAt,
		OverdueSweepDay:     env.ArchivalEnv.OverdueSweepDay,
		OverdueSweepAt:      env.ArchivalEnv.OverdueSweepAt,
		PostShiftDelayHours: env.ArchivalEnv.PostShiftDelayHours,
	})
	policy := archival.NewPolicy(taskRepo, assignmentRepo, responseRepo, shiftRepo, settings, locks, bus, env.ArchivalEnv.SweepBatchSize)

	return &components{
		env:       env,
		store:     store,
		bus:       bus,
		worker:    worker,
		service:   service,
		workflow:  workflow,
		policy:    policy,
		settings:  settings,
		resolver:  resolver,
		shifts:    shiftRepo,
		pushSubs:  pushSubRepo,
		taskRepo:  taskRepo,
		responses: responseRepo,
	}, nil
}

func runServer(c *components) {
	taskServer := task.NewServer(c.service, c.resolver, c.env.ProofEnv.MaxBatchBytes)
	verificationServer := verification.NewServer(c.workflow, c.resolver)
	pushSubServer := pushsubscription.NewServer(c.pushSubs)

	vapidEnv := config.VAPIDEnvFromEnv(c.env)
	sink := notify.NewWebPushSink(vapidEnv, c.pushSubs)
	dispatcher := notify.NewDispatcher(c.bus, c.taskRepo, sink)

	runner := archival.NewRunner(c.policy)

	srv := server.NewServer(c.env, taskServer, verificationServer, pushSubServer)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go dispatcher.Start(ctx)
	go runner.Run(ctx)
	if c.env.StorageEnv.Type != "s3" {
		// Local storage stages writes as .tmp before renaming; a crash in
		// between leaves orphans for the janitor.
		janitor := filejob.NewJanitor(c.env.StorageEnv.BaseDir)
		go janitor.Run(ctx)
	}
	go func() {
		if err := c.settings.Watch(ctx); err != nil {
			slog.Error("settings watcher error", "error", err)
		}
	}()

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after request contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	c.worker.Wait()
}

func runSweep(c *components) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	runner := archival.NewRunner(c.policy)
	if err := runner.RunOnce(ctx, *sweepOnly...); err != nil {
		slog.Error("sweep failed", "error", err)
		c.worker.Wait()
		os.Exit(1)
	}
	c.worker.Wait()
}
