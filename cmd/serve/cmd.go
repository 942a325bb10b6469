package serve

import (
	"context"
	"os"

	"github.com/combust-labs/gitwebhook/cmd"
	"github.com/combust-labs/gitwebhook/configs"
	"github.com/combust-labs/gitwebhook/pkg/flock"
	"github.com/combust-labs/gitwebhook/pkg/gitops"
	"github.com/combust-labs/gitwebhook/pkg/restart"
	"github.com/combust-labs/gitwebhook/pkg/tracing"
	"github.com/combust-labs/gitwebhook/pkg/utils"
	"github.com/combust-labs/gitwebhook/pkg/webhook"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// Command is the serve command declaration.
var Command = &cobra.Command{
	Use:   "serve",
	Short: "Starts the webhook server",
	Run:   run,
	Long:  ``,
}

var (
	envConfig     = configs.NewEnvConfig()
	gitConfig     = configs.NewGitConfig()
	lockConfig    = configs.NewLockConfig()
	logConfig     = configs.NewLogConfig()
	reposConfig   = configs.NewRepositoriesConfig()
	serverConfig  = configs.NewServerConfig()
	tracingConfig = configs.NewTracingConfig("gitwebhook")
)

func initFlags() {
	Command.Flags().AddFlagSet(envConfig.FlagSet())
	Command.Flags().AddFlagSet(gitConfig.FlagSet())
	Command.Flags().AddFlagSet(lockConfig.FlagSet())
	Command.Flags().AddFlagSet(logConfig.FlagSet())
	Command.Flags().AddFlagSet(reposConfig.FlagSet())
	Command.Flags().AddFlagSet(serverConfig.FlagSet())
	Command.Flags().AddFlagSet(tracingConfig.FlagSet())
}

func init() {
	initFlags()
}

func run(cobraCommand *cobra.Command, _ []string) {
	os.Exit(processCommand())
}

func processCommand() int {
	rootLogger := logConfig.NewLogger("serve")

	if err := envConfig.Apply(os.Environ(), gitConfig, lockConfig, reposConfig, serverConfig, tracingConfig); err != nil {
		rootLogger.Error("Failed reading configuration from the environment", "reason", err)
		return 1
	}

	if serverConfig.Debug {
		rootLogger.SetLevel(hclog.Debug)
	}

	if err := cmd.ValidateConfigs(gitConfig, lockConfig, reposConfig, serverConfig); err != nil {
		rootLogger.Error("Configuration is not valid", "reason", err)
		return 1
	}

	repositoryRoot, err := reposConfig.RepositoryRoot()
	if err != nil {
		rootLogger.Error("Failed resolving repository root", "reason", err)
		return 1
	}

	cleanup := utils.NewDefers(rootLogger)
	defer cleanup.CallAll()

	tracer, tracerCleanupFunc, err := tracing.GetTracer(rootLogger.Named("tracer"), tracingConfig)
	if err != nil {
		rootLogger.Error("Failed constructing the tracer", "reason", err)
		return 1
	}
	cleanup.Add("tracer", func() error {
		tracerCleanupFunc()
		return nil
	})

	updater, err := gitops.NewUpdater(gitConfig, rootLogger.Named("git"))
	if err != nil {
		rootLogger.Error("Failed creating the git updater", "reason", err)
		return 1
	}

	locks, err := flock.NewProvider(lockConfig.LockDir)
	if err != nil {
		rootLogger.Error("Failed creating the lock directory", "reason", err)
		return 1
	}

	ctx, cancel := cmd.InstallSignalHandlers(context.Background(), rootLogger)
	defer cancel()

	monitor := restart.NewMonitor(serverConfig.RestartTriggerFile,
		serverConfig.RestartPollInterval,
		rootLogger.Named("restart"))
	chanMonitorStopped := make(chan struct{})
	go func() {
		defer close(chanMonitorStopped)
		monitor.Run(ctx)
	}()
	cleanup.Add("restart-monitor", func() error {
		cancel()
		<-chanMonitorStopped
		return nil
	})

	registry := prometheus.NewRegistry()
	if serverConfig.MetricsEnable {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	router, err := webhook.NewRouter(&webhook.HandlerConfig{
		RepositoryRoot: repositoryRoot,
		SecurityToken:  serverConfig.SecurityToken,
		Debug:          serverConfig.Debug,
		LockTimeout:    lockConfig.LockTimeout,
		MetricsEnable:  serverConfig.MetricsEnable,
	}, &webhook.Dependencies{
		Updater:   updater,
		Locks:     locks,
		Restarter: monitor,
		Tracer:    tracer,
		Registry:  registry,
	}, rootLogger.Named("webhook"))
	if err != nil {
		rootLogger.Error("Failed creating the webhook router", "reason", err)
		return 1
	}

	server := webhook.NewServer(&webhook.ServerConfig{
		BindHostPort:    serverConfig.BindHostPort(),
		ShutdownTimeout: serverConfig.ShutdownTimeout,
	}, router, rootLogger.Named("http"))

	server.Start()

	select {
	case startErr := <-server.FailedNotify():
		rootLogger.Error("Webhook server failed to start", "reason", startErr)
		return 1
	case <-server.ReadyNotify():
		rootLogger.Info("Webhook server listening",
			"address", server.Addr(),
			"repository-root", repositoryRoot,
			"git-backend", gitConfig.Backend,
			"token-required", serverConfig.SecurityToken != "")
	}

	exitCode := 0
	select {
	case <-ctx.Done():
	case runErr := <-server.FailedNotify():
		rootLogger.Error("Webhook server failed", "reason", runErr)
		exitCode = 1
	}

	server.Stop()
	<-server.StoppedNotify()
	rootLogger.Info("Webhook server stopped")

	return exitCode
}
