// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"regexp"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// conferencePattern matches venue wording and common conference acronyms in
// arXiv comment and journal-ref fields.
var conferencePattern = regexp.MustCompile(`(?i)\b(?:conference|proceedings|symposium|workshop|neurips|nips|icml|iclr|cvpr|iccv|eccv|aaai|ijcai|acl|emnlp|naacl|kdd|sigir|siggraph|chi)\b|\bproc\.`)

// Classify infers the publication kind of a paper. arXiv carries no
// authoritative venue type, so this is best effort: a conference pattern in
// the comment or journal-ref wins, then any journal-ref means journal, and
// everything else is a preprint. Misclassification is expected.
func Classify(p types.Paper) types.ContentType {
	if conferencePattern.MatchString(p.Comment) || conferencePattern.MatchString(p.JournalRef) {
		return types.ContentConference
	}
	if p.JournalRef != "" {
		return types.ContentJournal
	}
	return types.ContentPreprint
}
