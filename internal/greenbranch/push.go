package greenbranch

import (
	"context"
	"fmt"
	"strings"
)

// PushGreenToMain lands mc/green upstream, either by merging it
// directly into the push branch and pushing to origin, or -- when
// PushMode is "pull_request" and a publisher is wired -- by pushing a
// disposable integration branch and opening a pull request against it
// instead. Returns false without error detail when AutoPush is
// disabled or any step fails, except the direct path's pull of the push
// branch, whose failure is ignored; callers only need to know whether
// the work landed (or a pull request was opened).
func (m *Manager) PushGreenToMain(ctx context.Context) bool {
	if !m.cfg.AutoPush {
		return false
	}
	if m.cfg.PushMode == "pull_request" && m.publisher != nil {
		return m.pushViaPullRequest(ctx)
	}
	return m.pushDirect(ctx)
}

// pushDirect merges mc/green into the push branch and pushes it to
// origin, operating in the source repo (whose origin is the real
// upstream) rather than the workspace clone (whose origin is the
// source repo itself).
func (m *Manager) pushDirect(ctx context.Context) bool {
	source := m.cfg.SourceRepo
	push := m.cfg.pushBranch()
	greenRef := "refs/mc/green-push"

	if _, err := m.runIn(ctx, source, "fetch", m.cfg.Workspace, "+"+m.cfg.greenBranch()+":"+greenRef); err != nil {
		return false
	}

	stashOut, stashErr := m.runIn(ctx, source, "stash", "--include-untracked")
	stashed := stashErr == nil && !containsNoLocalChanges(stashOut)
	if stashed {
		defer m.runIn(ctx, source, "stash", "pop")
	}

	if _, err := m.runIn(ctx, source, "checkout", push); err != nil {
		return false
	}
	m.runIn(ctx, source, "pull", "--rebase", "origin", push)

	if _, err := m.runIn(ctx, source, "merge", "--ff-only", greenRef); err != nil {
		if _, err := m.runIn(ctx, source, "merge", "--no-edit", greenRef); err != nil {
			return false
		}
	}

	_, err := m.runIn(ctx, source, "push", "origin", push)
	return err == nil
}

// pushViaPullRequest pushes mc/green to a fresh integration branch on
// origin and asks the publisher to open a pull request against the
// push branch, leaving the merge itself to human or branch-protection
// review rather than fast-forwarding it locally.
func (m *Manager) pushViaPullRequest(ctx context.Context) bool {
	source := m.cfg.SourceRepo
	push := m.cfg.pushBranch()
	head := "mc/integration-" + shortHash(trimNL(revParseOrRef(ctx, m, m.cfg.Workspace, m.cfg.greenBranch())))

	if _, err := m.runIn(ctx, source, "fetch", m.cfg.Workspace, "+"+m.cfg.greenBranch()+":refs/heads/"+head); err != nil {
		return false
	}
	if _, err := m.runIn(ctx, source, "push", "origin", "refs/heads/"+head); err != nil {
		return false
	}

	title := fmt.Sprintf("Integrate %s", head)
	body := "Automated integration branch opened by the green-branch manager."
	if _, err := m.publisher.PublishPullRequest(ctx, head, push, title, body); err != nil {
		return false
	}
	return true
}

const shortHashLen = 12

// revParseOrRef resolves ref to a commit hash, or returns ref itself
// if the resolution fails (e.g. the repo is in an unexpected state) --
// shortHash still produces a usable, if less unique, branch name.
func revParseOrRef(ctx context.Context, m *Manager, dir, ref string) string {
	out, err := m.runIn(ctx, dir, "rev-parse", ref)
	if err != nil {
		return ref
	}
	return out
}

// shortHash truncates a commit hash for use in a branch name, falling
// back to the full string when it's already shorter (e.g. rev-parse
// failed and revParseOrRef returned the bare ref name).
func shortHash(s string) string {
	if len(s) <= shortHashLen {
		return s
	}
	return s[:shortHashLen]
}

func containsNoLocalChanges(s string) bool {
	return strings.Contains(s, "No local changes")
}
