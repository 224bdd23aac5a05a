package assistant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"devtracker/internal/domain"
)

var (
	alpha = ChallengeRef{ID: "alpha", Title: "Project Alpha", Status: domain.StatusDrafting}
	beta  = ChallengeRef{ID: "beta", Title: "Beta Launch", Status: domain.StatusIdeation}
	done  = ChallengeRef{ID: "done", Title: "Shipped Thing", Status: domain.StatusPublished}
)

func TestResolveClarifiesBetweenActiveChallenges(t *testing.T) {
	res := Resolve("add a task for this", nil, []ChallengeRef{alpha, beta, done}, PageHint{})
	assert.True(t, res.NeedsClarification)
	assert.Empty(t, res.ChallengeID)
	assert.Equal(t, "Which challenge should I help you with?\n1. Project Alpha (Drafting)\n2. Beta Launch (Ideation)", res.ClarificationQuestion)
}

func TestResolveSingleActiveChallenge(t *testing.T) {
	res := Resolve("add a task for this", nil, []ChallengeRef{alpha, done}, PageHint{})
	assert.False(t, res.NeedsClarification)
	assert.Equal(t, "alpha", res.ChallengeID)
}

func TestResolvePageHintWins(t *testing.T) {
	res := Resolve("add a task for this", nil, []ChallengeRef{alpha, beta}, PageHint{ChallengeID: "beta"})
	assert.Equal(t, Resolution{ChallengeID: "beta"}, res)
}

func TestResolveRecentHistoryReference(t *testing.T) {
	history := []domain.Message{
		{Author: domain.AuthorUser, Text: "tell me about Beta Launch"},
		{Author: domain.AuthorAssistant, Text: `Added task: "Draft intro" to challenge "Project Alpha".`},
	}
	res := Resolve("add a task for this", history, []ChallengeRef{alpha, beta}, PageHint{})
	assert.Equal(t, "alpha", res.ChallengeID)

	// a message naming both challenges is skipped in favour of an older one
	history = append(history, domain.Message{Author: domain.AuthorAssistant, Text: "- Project Alpha\n- Beta Launch"})
	res = Resolve("add a task for this", history, []ChallengeRef{alpha, beta}, PageHint{})
	assert.Equal(t, "alpha", res.ChallengeID)
}

func TestResolveHistoryMatchesWholeWords(t *testing.T) {
	refs := []ChallengeRef{
		{ID: "go", Title: "Go", Status: domain.StatusDrafting},
		{ID: "rust", Title: "Rust", Status: domain.StatusIdeation},
	}
	history := []domain.Message{{Author: domain.AuthorAssistant, Text: "Good morning! How can I help?"}}
	res := Resolve("add a task for this", history, refs, PageHint{})
	assert.True(t, res.NeedsClarification)
	assert.Empty(t, res.ChallengeID)
	assert.Equal(t, "Which challenge should I help you with?\n1. Go (Drafting)\n2. Rust (Ideation)", res.ClarificationQuestion)

	history = append(history, domain.Message{Author: domain.AuthorUser, Text: "let's work on Go today"})
	res = Resolve("add a task for this", history, refs, PageHint{})
	assert.False(t, res.NeedsClarification)
	assert.Equal(t, "go", res.ChallengeID)
}

func TestResolveHistoryWindowIsBounded(t *testing.T) {
	history := []domain.Message{{Text: "Beta Launch please"}}
	for range historyWindow {
		history = append(history, domain.Message{Text: "nothing here"})
	}
	res := Resolve("add an idea", history, []ChallengeRef{alpha, beta}, PageHint{})
	assert.True(t, res.NeedsClarification)
}

func TestResolveTitleMention(t *testing.T) {
	refs := []ChallengeRef{alpha, done}
	assert.Equal(t, "alpha", Resolve("how is project alpha going?", nil, refs, PageHint{}).ChallengeID)
	assert.Equal(t, "alpha", Resolve("Alpha!", nil, refs, PageHint{}).ChallengeID)
	assert.Empty(t, Resolve("?!", nil, refs, PageHint{}).ChallengeID)
	assert.Empty(t, Resolve("what's the weather", nil, refs, PageHint{}).ChallengeID)
}

func TestResolveNoContextNeeded(t *testing.T) {
	res := Resolve("list my challenges", nil, []ChallengeRef{alpha, beta}, PageHint{})
	assert.Equal(t, Resolution{}, res)
}

func TestRequiresChallengeContext(t *testing.T) {
	for _, msg := range []string{"add task", "please add a new task", "Create an idea about X", "ideas for spring", "add some resources", "update challenge status"} {
		assert.True(t, requiresChallengeContext(strings.ToLower(msg)), msg)
	}
	for _, msg := range []string{"hello", "list challenges", "task list please"} {
		assert.False(t, requiresChallengeContext(strings.ToLower(msg)), msg)
	}
}
