package gitsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

func initRepo(t *testing.T, remoteURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	if remoteURL != "" {
		_, err = repo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{remoteURL}})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("app"), 0o600))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	hash, err := wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestInspect(t *testing.T) {
	dir, head := initRepo(t, "git@github.com:acme/app.git")
	sub := filepath.Join(dir, "app", "src")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	info, err := Inspect(sub)
	require.NoError(t, err)
	require.Equal(t, "acme", info.Owner)
	require.Equal(t, "app", info.Repo)
	require.Equal(t, "master", info.Branch)
	require.Equal(t, head, info.Head)
}

func TestInspectWithoutRemote(t *testing.T) {
	dir, _ := initRepo(t, "")
	info, err := Inspect(dir)
	require.NoError(t, err)
	require.Empty(t, info.Owner)
	require.Empty(t, info.RemoteURL)
}

func TestInspectNotARepository(t *testing.T) {
	_, err := Inspect(t.TempDir())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryGit))
}

func TestParseRemote(t *testing.T) {
	cases := []struct {
		in          string
		owner, repo string
		wantErr     bool
	}{
		{in: "https://github.com/acme/app.git", owner: "acme", repo: "app"},
		{in: "https://github.com/acme/app", owner: "acme", repo: "app"},
		{in: "ssh://git@github.com/acme/app.git", owner: "acme", repo: "app"},
		{in: "git@github.com:acme/app.git", owner: "acme", repo: "app"},
		{in: "https://github.com/", wantErr: true},
		{in: "app", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			owner, repo, err := ParseRemote(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.owner, owner)
			require.Equal(t, tc.repo, repo)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	rc := config.RemoteConfig{Owner: "explicit", Branch: "main"}
	ApplyDefaults(&rc, &Info{Owner: "acme", Repo: "app", Branch: "feature"})
	require.Equal(t, "explicit", rc.Owner)
	require.Equal(t, "app", rc.Repo)
	require.Equal(t, "main", rc.Branch)

	rc = config.RemoteConfig{}
	ApplyDefaults(&rc, &Info{Branch: "feature"})
	require.Equal(t, "feature", rc.Branch)
	ApplyDefaults(&rc, nil)
}
