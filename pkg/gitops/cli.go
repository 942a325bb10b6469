package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/combust-labs/gitwebhook/configs"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

type cliUpdater struct {
	config *configs.GitConfig
	logger hclog.Logger
	git    string
	env    []string
}

// NewCLIUpdater returns an updater driving the git executable.
// Returns an error when git cannot be found on PATH.
func NewCLIUpdater(config *configs.GitConfig, logger hclog.Logger) (Updater, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, errors.Wrap(err, "git binary not found in PATH, install git or use the go-git backend")
	}
	return &cliUpdater{
		config: config,
		logger: logger.Named("git-cli"),
		git:    gitPath,
		env:    cliEnvironment(config),
	}, nil
}

func cliEnvironment(config *configs.GitConfig) []string {
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if config.SSHKey != "" {
		sshCommand := []string{"ssh", "-i", config.SSHKey, "-o", "IdentitiesOnly=yes"}
		if config.SSHKnownHosts != "" {
			sshCommand = append(sshCommand, "-o", "UserKnownHostsFile="+config.SSHKnownHosts, "-o", "StrictHostKeyChecking=yes")
		} else {
			sshCommand = append(sshCommand, "-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=/dev/null")
		}
		env = append(env, "GIT_SSH_COMMAND="+strings.Join(sshCommand, " "))
	}
	if config.HTTPUsername != "" || config.HTTPPassword != "" {
		env = append(env,
			"WEBHOOK_GIT_HTTP_USERNAME="+config.HTTPUsername,
			"WEBHOOK_GIT_HTTP_PASSWORD="+config.HTTPPassword)
	}
	return env
}

func (u *cliUpdater) Update(ctx context.Context, repoPath string) error {
	if u.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.config.Timeout)
		defer cancel()
	}

	remoteName := u.config.Remote
	if remoteName == "" {
		remoteName = "origin"
	}

	steps := []struct {
		op   string
		args []string
	}{
		{op: "reset", args: []string{"reset", "--hard", "HEAD"}},
		{op: "clean", args: []string{"clean", "-fd"}},
		{op: "pull", args: []string{"pull", "--ff-only", remoteName}},
	}

	for _, step := range steps {
		if err := u.run(ctx, repoPath, step.op, step.args...); err != nil {
			return err
		}
	}
	return nil
}

func (u *cliUpdater) run(ctx context.Context, repoPath, op string, args ...string) error {
	opLogger := u.logger.With("repo", repoPath, "op", op)
	opLogger.Debug("running git", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, u.git, append(u.credentialArgs(), args...)...)
	cmd.Dir = repoPath
	cmd.Env = u.env

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return newCommandError(op, ctx.Err(), fmt.Sprintf("%s: %s", ctx.Err(), stderr.String()))
		}
		return newCommandError(op, err, stderr.String())
	}
	opLogger.Trace("git finished", "stdout", strings.TrimSpace(stdout.String()))
	return nil
}

// credentialArgs configures an inline credential helper when HTTP credentials are set.
// The credentials are read from the environment so they never appear in the process list.
func (u *cliUpdater) credentialArgs() []string {
	if u.config.HTTPUsername == "" && u.config.HTTPPassword == "" {
		return []string{}
	}
	return []string{
		"-c", "credential.helper=",
		"-c", `credential.helper=!f() { echo "username=${WEBHOOK_GIT_HTTP_USERNAME}"; echo "password=${WEBHOOK_GIT_HTTP_PASSWORD}"; }; f`,
	}
}
