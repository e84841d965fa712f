package agent

import (
	"strings"

	"github.com/m-mizutani/aigis/pkg/model"
)

// IsAddressed reports whether record addresses the agent: a reply to one
// of its posts, a mention of it, or a quote of one of its posts.
func IsAddressed(agentDID string, record *model.PostRecord) bool {
	if agentDID == "" || record == nil {
		return false
	}

	if record.Reply != nil && strings.Contains(record.Reply.Parent.URI, agentDID) {
		return true
	}

	for _, facet := range record.Facets {
		for _, f := range facet.Features {
			if f.IsMentionOf(agentDID) {
				return true
			}
		}
	}

	if quoted := record.Embed.QuotedURI(); quoted != "" && strings.Contains(quoted, agentDID) {
		return true
	}

	return false
}

// Allowlist is the set of authors permitted to trigger a reply. A nil
// Allowlist permits everyone.
type Allowlist map[string]struct{}

// NewAllowlist builds an allowlist from DIDs. Blank entries are ignored and
// an empty input yields nil.
func NewAllowlist(dids []string) Allowlist {
	var list Allowlist
	for _, did := range dids {
		did = strings.TrimSpace(did)
		if did == "" {
			continue
		}
		if list == nil {
			list = make(Allowlist)
		}
		list[did] = struct{}{}
	}
	return list
}

// Allows reports whether did may trigger a reply
func (l Allowlist) Allows(did string) bool {
	if l == nil {
		return true
	}
	_, ok := l[did]
	return ok
}
