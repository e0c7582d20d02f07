package shared

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"sort"
	"strings"
)

// dependencyManifests are file basenames whose change should trigger a
// dependency re-analysis.
var dependencyManifests = map[string]struct{}{
	"package.json":      {},
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"go.mod":            {},
	"go.sum":            {},
	"requirements.txt":  {},
	"pipfile":           {},
	"pipfile.lock":      {},
	"pyproject.toml":    {},
	"poetry.lock":       {},
	"gemfile":           {},
	"gemfile.lock":      {},
	"cargo.toml":        {},
	"cargo.lock":        {},
	"composer.json":     {},
	"composer.lock":     {},
	"pom.xml":           {},
	"build.gradle":      {},
}

func IsDependencyManifest(file string) bool {
	file = strings.TrimSpace(file)
	if file == "" {
		return false
	}
	_, ok := dependencyManifests[strings.ToLower(path.Base(file))]
	return ok
}

func FallbackDelivery(delivery string, body []byte) string {
	delivery = strings.TrimSpace(delivery)
	if delivery != "" {
		return delivery
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}

func BranchRef(branch string) string {
	branch = strings.TrimSpace(branch)
	if strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return "refs/heads/" + branch
}

func NonEmpty(a, b string) string {
	a = strings.TrimSpace(a)
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}

func UniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
