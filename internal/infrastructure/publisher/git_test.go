package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

func TestNewGitPublisherEmbedsToken(t *testing.T) {
	tests := []struct {
		name string
		cfg  sharedConfig.GitHubConfig
		want string
	}{
		{
			name: "token added",
			cfg:  sharedConfig.GitHubConfig{RepoURL: "https://github.com/user/repo.git", Token: "tok"},
			want: "https://tok@github.com/user/repo.git",
		},
		{
			name: "existing credentials kept",
			cfg:  sharedConfig.GitHubConfig{RepoURL: "https://other@github.com/user/repo.git", Token: "tok"},
			want: "https://other@github.com/user/repo.git",
		},
		{
			name: "no token",
			cfg:  sharedConfig.GitHubConfig{RepoURL: "https://github.com/user/repo.git"},
			want: "https://github.com/user/repo.git",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewGitPublisher(&tt.cfg, logger.NewLogger())
			assert.Equal(t, tt.want, p.repoURL)
		})
	}
}
