package update

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/combust-labs/gitwebhook/cmd"
	"github.com/combust-labs/gitwebhook/configs"
	"github.com/combust-labs/gitwebhook/pkg/flock"
	"github.com/combust-labs/gitwebhook/pkg/gitops"
	"github.com/combust-labs/gitwebhook/pkg/restart"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Command is the update command declaration.
var Command = &cobra.Command{
	Use:   "update [path...]",
	Short: "Updates working copies under the repository directory once",
	Run:   run,
	Long:  ``,
}

var (
	envConfig   = configs.NewEnvConfig()
	gitConfig   = configs.NewGitConfig()
	lockConfig  = configs.NewLockConfig()
	logConfig   = configs.NewLogConfig()
	reposConfig = configs.NewRepositoriesConfig()

	updateAll          bool
	signalRestart      bool
	restartTriggerFile string
)

func initFlags() {
	Command.Flags().AddFlagSet(envConfig.FlagSet())
	Command.Flags().AddFlagSet(gitConfig.FlagSet())
	Command.Flags().AddFlagSet(lockConfig.FlagSet())
	Command.Flags().AddFlagSet(logConfig.FlagSet())
	Command.Flags().AddFlagSet(reposConfig.FlagSet())
	Command.Flags().BoolVar(&updateAll, "all", false, "Update every working copy found under the repository directory")
	Command.Flags().BoolVar(&signalRestart, "signal-restart", false, "Touch the restart trigger file after a successful update")
	Command.Flags().StringVar(&restartTriggerFile, "restart-trigger-file", configs.DefaultRestartTriggerFile, "File touched when --signal-restart is set")
}

func init() {
	initFlags()
}

func run(cobraCommand *cobra.Command, args []string) {
	os.Exit(processCommand(args))
}

func processCommand(args []string) int {
	rootLogger := logConfig.NewLogger("update")

	if err := envConfig.Apply(os.Environ(), gitConfig, lockConfig, reposConfig); err != nil {
		rootLogger.Error("Failed reading configuration from the environment", "reason", err)
		return 1
	}

	if err := cmd.ValidateConfigs(gitConfig, lockConfig, reposConfig); err != nil {
		rootLogger.Error("Configuration is not valid", "reason", err)
		return 1
	}

	repositoryRoot, err := reposConfig.RepositoryRoot()
	if err != nil {
		rootLogger.Error("Failed resolving repository root", "reason", err)
		return 1
	}

	subpaths, err := selectRepositories(repositoryRoot, args, updateAll)
	if err != nil {
		rootLogger.Error("Failed selecting repositories", "reason", err)
		return 1
	}
	if len(subpaths) == 0 {
		rootLogger.Warn("No working copies found", "repository-root", repositoryRoot)
		return 0
	}

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

	batch := &batchUpdater{
		root:        repositoryRoot,
		updater:     updater,
		locks:       locks,
		lockTimeout: lockConfig.LockTimeout,
		logger:      rootLogger,
	}
	updated, updateErr := batch.run(ctx, subpaths, signalRestart, restartTriggerFile)

	if updateErr != nil {
		rootLogger.Error("Update finished with errors", "updated", updated, "failed", len(updateErr.Errors))
		fmt.Fprintln(os.Stderr, updateErr.Error())
		return 1
	}

	rootLogger.Info("Update finished", "updated", updated)
	return 0
}

// selectRepositories returns the repositories to update: either the given paths
// or, with all set, every working copy under the root. Exactly one must be used.
func selectRepositories(root string, args []string, all bool) ([]string, error) {
	if all && len(args) > 0 {
		return nil, errors.New("repository paths and --all are mutually exclusive")
	}
	if !all && len(args) == 0 {
		return nil, errors.New("give repository paths or --all")
	}
	if !all {
		return args, nil
	}
	return gitops.Discover(root)
}

type batchUpdater struct {
	root        string
	updater     gitops.Updater
	locks       flock.Provider
	lockTimeout time.Duration
	logger      hclog.Logger
}

// run updates the repositories and, when signalRestart is set and at least one
// repository was updated, touches the restart trigger file once.
func (b *batchUpdater) run(ctx context.Context, subpaths []string, signalRestart bool, triggerFile string) (int, *multierror.Error) {
	updated, result := b.updateAll(ctx, subpaths)
	if signalRestart && updated > 0 {
		if err := restart.Touch(triggerFile); err != nil {
			b.logger.Error("Failed touching the restart trigger file", "trigger-file", triggerFile, "reason", err)
			result = multierror.Append(result, err)
		} else {
			b.logger.Info("Restart signalled", "trigger-file", triggerFile)
		}
	}
	return updated, result
}

// updateAll updates every subpath in order, continuing past failures.
// Cancelling the context stops before the next repository, a running update completes.
// Returns the number of updated working copies and all errors.
func (b *batchUpdater) updateAll(ctx context.Context, subpaths []string) (int, *multierror.Error) {
	var result *multierror.Error
	updated := 0
	for _, subpath := range subpaths {
		if ctx.Err() != nil {
			result = multierror.Append(result, errors.Wrap(ctx.Err(), "update interrupted"))
			break
		}
		if err := b.updateOne(ctx, subpath); err != nil {
			b.logger.Error("Update failed", "path", subpath, "reason", err)
			result = multierror.Append(result, errors.Wrapf(err, "'%s'", subpath))
			continue
		}
		b.logger.Info("Repository updated", "path", subpath)
		updated++
	}
	return updated, result
}

func (b *batchUpdater) updateOne(ctx context.Context, subpath string) error {
	repoPath, err := gitops.ResolveRepositoryPath(b.root, subpath)
	if err != nil {
		return err
	}
	if stat, err := os.Stat(repoPath); err != nil || !stat.IsDir() {
		return fmt.Errorf("repository not found: %s", repoPath)
	}
	lock := b.locks.ForRepository(repoPath)
	if err := lock.AcquireWithTimeout(ctx, b.lockTimeout); err != nil {
		return errors.Wrap(err, "failed locking repository")
	}
	defer func() {
		if err := lock.Release(); err != nil {
			b.logger.Warn("Failed releasing repository lock", "path", subpath, "reason", err)
		}
	}()
	return b.updater.Update(context.WithoutCancel(ctx), repoPath)
}
