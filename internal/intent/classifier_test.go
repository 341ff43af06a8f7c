package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_GlobalRecall(t *testing.T) {
	r := Classify("have we ever discussed rate limiting across all our conversations")
	assert.Equal(t, ConversationRecall, r.Intent)
	assert.Equal(t, ScopeGlobal, r.Scope)
}

func TestClassify_SessionRecall(t *testing.T) {
	r := Classify("what did we decide last week")
	assert.Equal(t, ConversationRecall, r.Intent)
	assert.Equal(t, ScopeSession, r.Scope)
}

func TestClassify_KnowledgeQueryDefault(t *testing.T) {
	r := Classify("how does the diversity enforcer pick sources")
	assert.Equal(t, KnowledgeQuery, r.Intent)
	assert.Equal(t, ScopeSession, r.Scope)
}

func TestClassify_GlobalTakesPrecedenceOverSession(t *testing.T) {
	r := Classify("what did we say earlier today, and also ever before that")
	assert.Equal(t, ConversationRecall, r.Intent)
	assert.Equal(t, ScopeGlobal, r.Scope)
}
