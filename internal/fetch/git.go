package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"

	"github.com/crater-build/crater/internal/msg"
)

var gitShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const gitPrefix = "git:"

var errIllegalGitSource = errors.New("empty or illegal git source string")

// cloneSource resolves a recipe git source string and clones it into
// the canonical source path.
func cloneSource(ctx context.Context, src, toWhere string) error {
	if src == "" {
		return errIllegalGitSource
	}

	// `git:` prefix, e.g. git:https://github.com/mattiasflodin/reckless.git
	if strings.HasPrefix(src, gitPrefix) {
		return cloneGitRepo(ctx, src[len(gitPrefix):], toWhere)
	}

	// shortcut prefix, e.g. gh:mattiasflodin/reckless#v3.0.3
	for shortcut, base := range gitShortcuts {
		if strings.HasPrefix(src, shortcut) {
			return cloneGitRepo(ctx, base+src[len(shortcut):], toWhere)
		}
	}

	return fmt.Errorf("%w: %q", errIllegalGitSource, src)
}

type gitURL struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// someone/something@master#v3.0.3
// someone/something@feature-branch#12345abc
// someone/something#12345abc
func parseGitURL(rawURL string) (res gitURL) {
	parts := strings.SplitN(rawURL, "#", 2)
	baseURL := parts[0]
	if len(parts) == 2 {
		res.commitOrTag = parts[1]
	}

	parts = strings.SplitN(baseURL, "@", 2)
	res.cleanURL = parts[0]
	if len(parts) == 2 {
		res.branch = parts[1]
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}

	return
}

// cloneGitRepo clones a Git remote into the specified directory
func cloneGitRepo(ctx context.Context, url, toWhere string) error {
	parsedURL := parseGitURL(url)

	cloneOptions := &git.CloneOptions{
		URL:               parsedURL.cleanURL,
		Progress:          &msg.IndentWriter{Indent: "    ", W: os.Stdout},
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}

	if parsedURL.commitOrTag == "" {
		cloneOptions.Depth = 1 // we can do a shallow clone of the latest commit
	}

	if parsedURL.branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(parsedURL.branch)
		cloneOptions.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, toWhere, cloneOptions)
	if err != nil {
		return err
	}

	if parsedURL.commitOrTag != "" {
		w, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("could not get worktree: %w", err)
		}

		revision := parsedURL.commitOrTag
		hash, err := repo.ResolveRevision(plumbing.Revision(revision))
		if err != nil {
			return fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
		}

		err = w.Checkout(&git.CheckoutOptions{
			Hash:  *hash,
			Force: true,
		})
		if err != nil {
			return fmt.Errorf("failed to checkout `%s`: %w", revision, err)
		}
	}

	return nil
}
