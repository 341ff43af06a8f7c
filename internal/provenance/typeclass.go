package provenance

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

// classifyRule is one rung of the ordered cascade: the first rule whose
// predicate matches wins.
type classifyRule struct {
	name  string
	match func(kind memory.SourceKind, path, content string) bool
	typ   memory.ChunkType
}

var (
	readmeRe       = regexp.MustCompile(`(?i)^readme(\.[a-z0-9]+)?$`)
	tutorialRe     = regexp.MustCompile(`(?i)\b(tutorial|walkthrough|getting started|how[- ]to)\b`)
	decisionRe     = regexp.MustCompile(`(?i)\b(we decided|decision:|we chose|we will use)\b`)
	constraintRe   = regexp.MustCompile(`(?i)\b(must not|must always|never do|always do)\b|\b(invariant|constraint):`)
	adrRe          = regexp.MustCompile(`(?i)^(adr|0*\d+)[-_].*\.md$`)
	apiRefRe       = regexp.MustCompile("(?i)(^|/)(api|reference)([-_]?docs?)?[/.]|@param|@returns?\\b")
	paperRe        = regexp.MustCompile(`(?i)\b(abstract|we propose|related work|et al\.)\b`)
	codeExampleRe  = regexp.MustCompile("(?i)\\bexample\\b|```")
	codeExtRe      = regexp.MustCompile(`(?i)\.(go|py|js|ts|tsx|jsx|java|rb|rs|c|cc|cpp|h|hpp|cs|php|swift|kt)$`)
	discussionRe   = regexp.MustCompile(`(?i)\b(thread|reply|@\w+|re:)\b`)
)

// rules is the ordered cascade used by Classify. Order determines the
// outcome, not the rule names, so reordering this slice changes behavior.
var rules = []classifyRule{
	{"readme", func(k memory.SourceKind, p, c string) bool {
		return readmeRe.MatchString(filepath.Base(p))
	}, memory.ChunkReadme},
	{"constraint", func(k memory.SourceKind, p, c string) bool {
		return constraintRe.MatchString(c)
	}, memory.ChunkConstraintInvariant},
	{"decision", func(k memory.SourceKind, p, c string) bool {
		return decisionRe.MatchString(c)
	}, memory.ChunkDecisionRationale},
	{"adr", func(k memory.SourceKind, p, c string) bool {
		return adrRe.MatchString(filepath.Base(p)) || strings.Contains(strings.ToLower(p), "/adr/")
	}, memory.ChunkArchitectureDecision},
	{"conversation_event", func(k memory.SourceKind, p, c string) bool {
		return k == memory.SourceConversation
	}, memory.ChunkConversationEvent},
	{"discussion", func(k memory.SourceKind, p, c string) bool {
		return discussionRe.MatchString(c)
	}, memory.ChunkDiscussionThread},
	{"tutorial", func(k memory.SourceKind, p, c string) bool {
		return tutorialRe.MatchString(c) || tutorialRe.MatchString(p)
	}, memory.ChunkTutorial},
	{"api_reference", func(k memory.SourceKind, p, c string) bool {
		return apiRefRe.MatchString(p) || apiRefRe.MatchString(c)
	}, memory.ChunkAPIReference},
	{"code_example", func(k memory.SourceKind, p, c string) bool {
		return codeExtRe.MatchString(p) && codeExampleRe.MatchString(c)
	}, memory.ChunkCodeExample},
	{"code_implementation", func(k memory.SourceKind, p, c string) bool {
		return codeExtRe.MatchString(p)
	}, memory.ChunkCodeImplementation},
	{"paper_excerpt", func(k memory.SourceKind, p, c string) bool {
		return paperRe.MatchString(c)
	}, memory.ChunkPaperExcerpt},
	{"web_article", func(k memory.SourceKind, p, c string) bool {
		return k == memory.SourceWeb
	}, memory.ChunkWebArticle},
	{"documentation", func(k memory.SourceKind, p, c string) bool {
		return k == memory.SourceRepoFile && (strings.Contains(strings.ToLower(p), "docs/") || strings.HasSuffix(strings.ToLower(p), ".md"))
	}, memory.ChunkDocumentation},
	{"research_note", func(k memory.SourceKind, p, c string) bool {
		return k == memory.SourceNote && strings.Contains(strings.ToLower(c), "hypothesis")
	}, memory.ChunkResearchNote},
	{"general_note", func(k memory.SourceKind, p, c string) bool {
		return k == memory.SourceNote || k == memory.SourceManual
	}, memory.ChunkGeneralNote},
}

// Classify maps a chunk to one of the ~16 chunk types by walking an
// ordered rule cascade; the first match wins. Returns ChunkUnknown when
// nothing matches.
func Classify(kind memory.SourceKind, path, content string) memory.ChunkType {
	for _, r := range rules {
		if r.match(kind, path, content) {
			return r.typ
		}
	}
	return memory.ChunkUnknown
}
