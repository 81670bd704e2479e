package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/pipedeck/pipedeck/internal/repoauth"
)

// ErrBranchNotFound is returned by RemoteHead when the branch does not exist on the remote.
var ErrBranchNotFound = errors.New("branch not found on remote")

// Branches lists the remote branches of a repository without cloning it.
// Names are returned in full form (refs/heads/main), sorted.
func Branches(ctx context.Context, repoURL string, opts repoauth.Options) ([]string, error) {
	refs, err := listRefs(ctx, repoURL, opts)
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			branches = append(branches, ref.Name().String())
		}
	}
	sort.Strings(branches)
	return branches, nil
}

// RemoteHead returns the commit hash the branch points to on the remote.
// branch may be a short name (main) or a full reference (refs/heads/main).
func RemoteHead(ctx context.Context, repoURL, branch string, opts repoauth.Options) (string, error) {
	refs, err := listRefs(ctx, repoURL, opts)
	if err != nil {
		return "", err
	}

	name := plumbing.ReferenceName(branch)
	if !name.IsBranch() {
		name = plumbing.NewBranchReferenceName(branch)
	}
	for _, ref := range refs {
		if ref.Name() == name {
			return ref.Hash().String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrBranchNotFound, name)
}

func listRefs(ctx context.Context, repoURL string, opts repoauth.Options) ([]*plumbing.Reference, error) {
	auth, err := repoauth.AuthMethod(repoURL, opts)
	if err != nil {
		return nil, err
	}

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("failed listing remote %s: %w", repoauth.ShortName(repoURL), err)
	}
	return refs, nil
}
