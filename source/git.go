package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/http"
	"gopkg.in/src-d/go-git.v4/storage/memory"

	"github.com/picostack/gitadapter/config"
)

var _ Source = &Git{}

// Git implements a Source that performs a shallow, in-memory clone of the
// repository on every fetch and reads the file from the head commit. It is an
// alternative to the contents API for hosts that only expose git over HTTP.
type Git struct {
	URL      string
	Branch   string
	FileName string
	Username string
	Token    string
}

// CloneURL derives the HTTPS clone URL of a GitHub-hosted repository.
func CloneURL(owner, repository string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repository)
}

// Fetch implements Source
func (g *Git) Fetch(ctx context.Context) (config.Config, error) {
	zap.L().Debug("cloning configuration repository",
		zap.String("url", g.URL),
		zap.String("branch", g.Branch))

	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, g.cloneOptions())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to clone %s", g.URL)
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve HEAD")
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, errors.Wrap(err, "failed to read head commit")
	}
	file, err := commit.File(strings.Trim(g.FileName, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find %s at %s", g.FileName, ref.Hash())
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", g.FileName)
	}
	return config.Parse([]byte(contents))
}

// Name implements Source
func (g *Git) Name() string {
	return "git"
}

func (g *Git) cloneOptions() *git.CloneOptions {
	o := &git.CloneOptions{
		URL:          g.URL,
		Auth:         g.auth(),
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if g.Branch != "" {
		o.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
	}
	return o
}

func (g *Git) auth() transport.AuthMethod {
	if g.Token == "" {
		return nil
	}
	return &http.BasicAuth{Username: g.Username, Password: g.Token}
}
