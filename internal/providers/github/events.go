package github

import (
	"encoding/json"
	"fmt"

	"leadflow/internal/ingest"
	"leadflow/internal/providers/shared"

	githubv53 "github.com/google/go-github/v53/github"
)

// MainBranch is the branch whose manifest changes trigger reanalysis.
const MainBranch = "main"

// Event is the closed set of GitHub webhook payloads this service understands.
// UnknownEvent stands in for every event type GitHub adds later.
type Event interface {
	eventName() string
}

type PushEvent struct {
	Ref          string
	After        string
	Repository   string
	Pusher       string
	ChangedFiles []string
}

type RepositoryEvent struct {
	Action     string
	Repository string
}

type UnknownEvent struct {
	Type string
}

func (PushEvent) eventName() string       { return "push" }
func (RepositoryEvent) eventName() string { return "repository" }
func (e UnknownEvent) eventName() string  { return e.Type }

// ParseEvent decodes the verified raw body into its typed variant.
func ParseEvent(env ingest.VerifiedEnvelope) (Event, error) {
	switch env.EventType() {
	case "push":
		var p githubv53.PushEvent
		if err := json.Unmarshal(env.RawBody(), &p); err != nil {
			return nil, fmt.Errorf("decode push payload: %w", err)
		}
		return pushFromPayload(&p), nil
	case "repository":
		var p githubv53.RepositoryEvent
		if err := json.Unmarshal(env.RawBody(), &p); err != nil {
			return nil, fmt.Errorf("decode repository payload: %w", err)
		}
		return RepositoryEvent{
			Action:     p.GetAction(),
			Repository: repoFullName(p.GetRepo()),
		}, nil
	default:
		return UnknownEvent{Type: env.EventType()}, nil
	}
}

func pushFromPayload(p *githubv53.PushEvent) PushEvent {
	files := make([]string, 0)
	commits := append([]*githubv53.HeadCommit{}, p.Commits...)
	if p.HeadCommit != nil {
		commits = append(commits, p.HeadCommit)
	}
	for _, c := range commits {
		if c == nil {
			continue
		}
		files = append(files, c.Added...)
		files = append(files, c.Modified...)
		files = append(files, c.Removed...)
	}
	return PushEvent{
		Ref:          p.GetRef(),
		After:        p.GetAfter(),
		Repository:   repoFullName(p.GetRepo()),
		Pusher:       p.GetPusher().GetName(),
		ChangedFiles: shared.UniqueSorted(files),
	}
}

type repoNamer interface {
	GetFullName() string
	GetName() string
}

func repoFullName(repo repoNamer) string {
	if repo == nil {
		return "unknown"
	}
	return shared.NonEmpty(repo.GetFullName(), shared.NonEmpty(repo.GetName(), "unknown"))
}

// OnMainBranch reports whether the push targeted refs/heads/main. The
// repository's configured default branch is ignored.
func (e PushEvent) OnMainBranch() bool {
	return e.Ref == shared.BranchRef(MainBranch)
}

// Manifests lists the dependency manifest files touched by the push.
func (e PushEvent) Manifests() []string {
	out := make([]string, 0)
	for _, f := range e.ChangedFiles {
		if shared.IsDependencyManifest(f) {
			out = append(out, f)
		}
	}
	return out
}
