// Package access implements the repository allow-list check.
package access

import "strings"

// MatchMode selects the form a repository name is compared in.
type MatchMode string

const (
	// MatchBare compares the repository name as delivered in the event.
	MatchBare MatchMode = "bare"

	// MatchQualified compares the owner-qualified "owner/repo" form.
	MatchQualified MatchMode = "qualified"
)

// ParseMatchMode converts a configured string to a MatchMode.
// Unknown values fall back to MatchBare.
func ParseMatchMode(s string) MatchMode {
	if MatchMode(s) == MatchQualified {
		return MatchQualified
	}
	return MatchBare
}

// Policy is the set of permitted repository names. It is built once at
// startup and read-only afterwards, so lookups need no locking.
type Policy struct {
	owner   string
	mode    MatchMode
	allowed map[string]struct{}
}

// NewPolicy builds a policy from the configured owner and repository list.
// Entries are trimmed; empty entries are dropped. Exact membership only, no
// wildcard or prefix matching.
func NewPolicy(owner string, repositories []string, mode MatchMode) *Policy {
	allowed := make(map[string]struct{}, len(repositories))
	for _, repo := range repositories {
		repo = strings.TrimSpace(repo)
		if repo == "" {
			continue
		}
		allowed[repo] = struct{}{}
	}

	return &Policy{
		owner:   strings.TrimSpace(owner),
		mode:    mode,
		allowed: allowed,
	}
}

// Allowed reports whether the event's repository name is permitted. An empty
// repository name is always denied. Denial is a normal per-event outcome,
// not an error.
func (p *Policy) Allowed(repositoryName string) bool {
	if p == nil || repositoryName == "" {
		return false
	}

	key := repositoryName
	if p.mode == MatchQualified && !strings.Contains(repositoryName, "/") {
		key = p.owner + "/" + repositoryName
	}

	_, ok := p.allowed[key]
	return ok
}

// Size returns the number of configured entries.
func (p *Policy) Size() int {
	if p == nil {
		return 0
	}
	return len(p.allowed)
}
