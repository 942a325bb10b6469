package gitops

import (
	"context"
	"fmt"
	"strings"

	"github.com/combust-labs/gitwebhook/configs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type goGitUpdater struct {
	config *configs.GitConfig
	logger hclog.Logger

	sshAuth  transport.AuthMethod
	httpAuth transport.AuthMethod
}

// NewGoGitUpdater returns an updater operating on repositories in process.
// SSH keys and known hosts are loaded once, when the updater is created.
func NewGoGitUpdater(config *configs.GitConfig, logger hclog.Logger) (Updater, error) {
	updater := &goGitUpdater{
		config: config,
		logger: logger.Named("go-git"),
	}
	if config.SSHKey != "" {
		sshUser := config.SSHUser
		if sshUser == "" {
			sshUser = "git"
		}
		keys, err := gitssh.NewPublicKeysFromFile(sshUser, config.SSHKey, config.SSHKeyPassword)
		if err != nil {
			return nil, errors.Wrapf(err, "failed loading SSH key '%s'", config.SSHKey)
		}
		if config.SSHKnownHosts != "" {
			callback, err := knownhosts.New(config.SSHKnownHosts)
			if err != nil {
				return nil, errors.Wrapf(err, "failed loading known hosts '%s'", config.SSHKnownHosts)
			}
			keys.HostKeyCallback = callback
		} else {
			keys.HostKeyCallback = gossh.InsecureIgnoreHostKey()
		}
		updater.sshAuth = keys
	}
	if config.HTTPUsername != "" || config.HTTPPassword != "" {
		updater.httpAuth = &githttp.BasicAuth{
			Username: config.HTTPUsername,
			Password: config.HTTPPassword,
		}
	}
	return updater, nil
}

func (u *goGitUpdater) Update(ctx context.Context, repoPath string) error {
	if u.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.config.Timeout)
		defer cancel()
	}

	opLogger := u.logger.With("repo", repoPath)

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return newCommandError("open", err, "")
	}

	head, err := repo.Head()
	if err != nil {
		return newCommandError("rev-parse HEAD", err, "")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return newCommandError("worktree", err, "")
	}

	opLogger.Debug("resetting working tree", "commit", head.Hash().String())
	if err := worktree.Reset(&git.ResetOptions{
		Commit: head.Hash(),
		Mode:   git.HardReset,
	}); err != nil {
		return newCommandError("reset", err, "")
	}

	opLogger.Debug("removing untracked files")
	if err := cleanWorktree(worktree); err != nil {
		return newCommandError("clean", err, "")
	}

	if !head.Name().IsBranch() {
		return newCommandError("pull", nil, "HEAD is detached, nothing to pull into")
	}

	remoteName := u.config.Remote
	if remoteName == "" {
		remoteName = git.DefaultRemoteName
	}

	remote, err := repo.Remote(remoteName)
	if err != nil {
		return newCommandError("pull", err, fmt.Sprintf("remote '%s': %v", remoteName, err))
	}

	mergeRef, err := mergeReference(repo, remoteName, head.Name())
	if err != nil {
		return newCommandError("pull", err, "")
	}

	opLogger.Debug("pulling", "remote", remoteName, "ref", mergeRef.String())
	pullErr := worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    remoteName,
		ReferenceName: mergeRef,
		SingleBranch:  true,
		Auth:          u.authFor(remote.Config().URLs),
	})
	if pullErr != nil && pullErr != git.NoErrAlreadyUpToDate {
		return newCommandError("pull", pullErr, "")
	}
	if pullErr == git.NoErrAlreadyUpToDate {
		opLogger.Debug("already up to date")
	}
	return nil
}

// mergeReference returns the remote branch the local branch tracks,
// or the branch of the same name when no tracking is configured.
func mergeReference(repo *git.Repository, remoteName string, branch plumbing.ReferenceName) (plumbing.ReferenceName, error) {
	cfg, err := repo.Config()
	if err != nil {
		return "", err
	}
	if branchCfg, ok := cfg.Branches[branch.Short()]; ok && branchCfg.Merge != "" {
		if branchCfg.Remote == "" || branchCfg.Remote == remoteName {
			return branchCfg.Merge, nil
		}
	}
	return branch, nil
}

func (u *goGitUpdater) authFor(urls []string) transport.AuthMethod {
	if len(urls) == 0 {
		return nil
	}
	url := urls[0]
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return u.httpAuth
	}
	if strings.HasPrefix(url, "file://") || !strings.Contains(url, ":") || strings.HasPrefix(url, "/") {
		return nil
	}
	return u.sshAuth
}
