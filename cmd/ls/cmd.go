package ls

import (
	"fmt"
	"os"

	"github.com/combust-labs/gitwebhook/configs"
	"github.com/combust-labs/gitwebhook/pkg/gitops"
	"github.com/spf13/cobra"
)

// Command is the ls command declaration.
var Command = &cobra.Command{
	Use:   "ls",
	Short: "Lists working copies under the repository directory",
	Run:   run,
	Long:  ``,
}

var (
	envConfig   = configs.NewEnvConfig()
	logConfig   = configs.NewLogConfig()
	reposConfig = configs.NewRepositoriesConfig()
)

func initFlags() {
	Command.Flags().AddFlagSet(envConfig.FlagSet())
	Command.Flags().AddFlagSet(logConfig.FlagSet())
	Command.Flags().AddFlagSet(reposConfig.FlagSet())
}

func init() {
	initFlags()
}

func run(cobraCommand *cobra.Command, _ []string) {
	rootLogger := logConfig.NewLogger("ls")

	if err := envConfig.Apply(os.Environ(), reposConfig); err != nil {
		rootLogger.Error("Failed reading configuration from the environment", "reason", err)
		os.Exit(1)
	}
	if err := reposConfig.Validate(); err != nil {
		rootLogger.Error("Configuration is not valid", "reason", err)
		os.Exit(1)
	}
	repositoryRoot, err := reposConfig.RepositoryRoot()
	if err != nil {
		rootLogger.Error("Failed resolving repository root", "reason", err)
		os.Exit(1)
	}

	if err := printRepositories(cobraCommand, repositoryRoot); err != nil {
		rootLogger.Error("Failed discovering working copies", "reason", err)
		os.Exit(1)
	}
}

// printRepositories writes the working copies under the root to the command output, one per line.
func printRepositories(cobraCommand *cobra.Command, repositoryRoot string) error {
	found, err := gitops.Discover(repositoryRoot)
	if err != nil {
		return err
	}
	for _, subpath := range found {
		fmt.Fprintln(cobraCommand.OutOrStdout(), subpath)
	}
	return nil
}
