// Package publisher pushes subscription files to a git repository.
package publisher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

// GitPublisher owns a local working copy of the target repository and
// publishes one file per call. Recovery ladder on a dirty or diverged copy:
// pull --rebase, then fetch + hard reset, then a fresh clone.
type GitPublisher struct {
	repoURL string
	user    string
	email   string
	branch  string
	repoDir string
	log     logger.Interface
}

func NewGitPublisher(cfg *sharedConfig.GitHubConfig, log logger.Interface) *GitPublisher {
	repoURL := cfg.RepoURL
	// Embed the token for authenticated pushes over HTTPS.
	if cfg.Token != "" && !strings.Contains(repoURL, "@") {
		repoURL = strings.Replace(repoURL, "https://", "https://"+cfg.Token+"@", 1)
	}

	return &GitPublisher{
		repoURL: repoURL,
		user:    cfg.User,
		email:   cfg.Email,
		branch:  cfg.Branch,
		repoDir: cfg.RepoDir,
		log:     log.Named("publisher"),
	}
}

// UpdateFileAndPush writes content to filename inside the working copy,
// commits when the porcelain status reports a change, and pushes.
func (p *GitPublisher) UpdateFileAndPush(ctx context.Context, filename, content string) error {
	if err := p.setupRepo(ctx); err != nil {
		return fmt.Errorf("failed to prepare working copy: %w", err)
	}

	path := filepath.Join(p.repoDir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}

	status, err := p.git(ctx, p.repoDir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		p.log.Infow("no changes to push", "file", filename)
		return nil
	}

	if _, err := p.git(ctx, p.repoDir, "add", filename); err != nil {
		return err
	}
	if _, err := p.git(ctx, p.repoDir, "commit", "-m", "Auto-update "+filename); err != nil {
		return err
	}
	if _, err := p.git(ctx, p.repoDir, "push", "origin", p.branch); err != nil {
		return err
	}

	p.log.Infow("pushed subscription file", "file", filename)
	return nil
}

func (p *GitPublisher) setupRepo(ctx context.Context) error {
	if _, err := os.Stat(p.repoDir); os.IsNotExist(err) {
		return p.clone(ctx)
	}

	if _, err := os.Stat(filepath.Join(p.repoDir, ".git")); os.IsNotExist(err) {
		p.log.Warnw("working copy exists but is not a repository, recloning", "dir", p.repoDir)
		if err := os.RemoveAll(p.repoDir); err != nil {
			return err
		}
		return p.clone(ctx)
	}

	if _, err := p.git(ctx, p.repoDir, "pull", "--rebase", "origin", p.branch); err == nil {
		return nil
	}

	p.log.Warnw("pull --rebase failed, resetting to remote")
	if _, err := p.git(ctx, p.repoDir, "fetch", "origin", p.branch); err != nil {
		return err
	}
	_, err := p.git(ctx, p.repoDir, "reset", "--hard", "origin/"+p.branch)
	return err
}

func (p *GitPublisher) clone(ctx context.Context) error {
	p.log.Infow("cloning repository", "dir", p.repoDir)

	if parent := filepath.Dir(p.repoDir); parent != "" {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return err
		}
	}

	if _, err := p.git(ctx, "", "clone", "-b", p.branch, "--single-branch", p.repoURL, p.repoDir); err != nil {
		return err
	}
	if _, err := p.git(ctx, p.repoDir, "config", "user.name", p.user); err != nil {
		return err
	}
	_, err := p.git(ctx, p.repoDir, "config", "user.email", p.email)
	return err
}

func (p *GitPublisher) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}
