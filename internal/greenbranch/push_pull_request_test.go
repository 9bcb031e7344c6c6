package greenbranch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	calls []string
	url   string
	err   error
}

func (f *fakePublisher) PublishPullRequest(ctx context.Context, head, base, title, body string) (string, error) {
	f.calls = append(f.calls, head+"->"+base)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func commitToGreen(t *testing.T, m *Manager, file, content string) {
	t.Helper()
	runGit(t, m.cfg.Workspace, "checkout", "mc/green")
	require.NoError(t, os.WriteFile(filepath.Join(m.cfg.Workspace, file), []byte(content), 0o644))
	runGit(t, m.cfg.Workspace, "add", ".")
	runGit(t, m.cfg.Workspace, "commit", "-m", "green commit: "+file)
}

// addBareOrigin creates a bare repo, registers it as source's "origin"
// remote, and pushes main to it -- PushGreenToMain's direct and
// pull-request paths both push to an "origin" remote, which a plain
// `git init` source repo (as used by newTestManager) doesn't have.
func addBareOrigin(t *testing.T, source string) {
	t.Helper()
	bare := filepath.Join(t.TempDir(), "origin.git")
	runGit(t, t.TempDir(), "init", "--bare", "-b", "main", bare)
	runGit(t, source, "remote", "add", "origin", bare)
	runGit(t, source, "push", "origin", "main")
}

func TestPushGreenToMainUsesPublisherWhenPushModeIsPullRequest(t *testing.T) {
	m, source := newTestManager(t, nil)
	addBareOrigin(t, source)
	m.cfg.AutoPush = true
	m.cfg.PushMode = "pull_request"
	pub := &fakePublisher{url: "https://github.com/example/repo/pull/1"}
	m.SetPublisher(pub)

	commitToGreen(t, m, "feature.txt", "content\n")

	ok := m.PushGreenToMain(context.Background())
	require.True(t, ok)
	require.Len(t, pub.calls, 1)
	require.Contains(t, pub.calls[0], "->main")
}

func TestPushGreenToMainFallsBackToDirectPushWhenNoPublisherWired(t *testing.T) {
	m, source := newTestManager(t, nil)
	addBareOrigin(t, source)
	m.cfg.AutoPush = true
	m.cfg.PushMode = "pull_request"
	// No SetPublisher call -- PushGreenToMain must fall back to pushDirect.

	commitToGreen(t, m, "feature2.txt", "content\n")

	ok := m.PushGreenToMain(context.Background())
	require.True(t, ok)
}

func TestPushGreenToMainReturnsFalseWhenPublisherErrors(t *testing.T) {
	m, source := newTestManager(t, nil)
	addBareOrigin(t, source)
	m.cfg.AutoPush = true
	m.cfg.PushMode = "pull_request"
	m.SetPublisher(&fakePublisher{err: errors.New("boom")})

	commitToGreen(t, m, "feature3.txt", "content\n")

	ok := m.PushGreenToMain(context.Background())
	require.False(t, ok)
}
