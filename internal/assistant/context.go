package assistant

import (
	"fmt"
	"regexp"
	"strings"

	"devtracker/internal/domain"
)

// historyWindow is how many recent messages are searched for a challenge reference.
const historyWindow = 5

// contextPhrases mark requests that only make sense against a specific challenge.
var contextPhrases = []string{
	"add task", "create task", "new task",
	"add idea", "create idea", "new idea", "ideas for",
	"add resource", "create resource", "new resource",
	"update challenge", "modify challenge",
}

// fillerWords are skipped when matching phrases, so "add a task" reads as "add task".
var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "some": true, "another": true, "more": true,
}

var (
	wordRe        = regexp.MustCompile(`[a-z0-9]+`)
	punctuationRe = regexp.MustCompile(`[^\w\s]`)
)

// ChallengeRef is the slice of a challenge the resolver needs.
type ChallengeRef struct {
	ID     string
	Title  string
	Status domain.ChallengeStatus
}

// Refs lists every challenge in the state.
func Refs(st domain.State) []ChallengeRef {
	out := make([]ChallengeRef, 0, len(st.Challenges))
	for _, c := range st.Challenges {
		out = append(out, ChallengeRef{ID: c.ID, Title: c.Title, Status: c.Status})
	}
	return out
}

// PageHint carries the challenge the caller is currently looking at, if any.
type PageHint struct {
	ChallengeID string
}

type Resolution struct {
	ChallengeID           string
	NeedsClarification    bool
	ClarificationQuestion string
}

// Resolve decides which challenge, if any, a message is about. The first rule that applies
// wins: page hint, a challenge referenced in recent history, the only active challenge for a
// context-dependent request or a message naming it, and finally a clarification question
// when several active challenges could be meant.
func Resolve(message string, history []domain.Message, challenges []ChallengeRef, hint PageHint) Resolution {
	if hint.ChallengeID != "" {
		return Resolution{ChallengeID: hint.ChallengeID}
	}
	if id, ok := recentChallenge(history, challenges); ok {
		return Resolution{ChallengeID: id}
	}

	text := strings.ToLower(message)
	var active []ChallengeRef
	for _, c := range challenges {
		if c.Status.Active() {
			active = append(active, c)
		}
	}
	needsContext := requiresChallengeContext(text)

	if len(active) == 1 {
		only := active[0]
		if needsContext || mentionsTitle(text, only.Title) {
			return Resolution{ChallengeID: only.ID}
		}
	}
	if len(active) > 1 && needsContext {
		return Resolution{
			NeedsClarification:    true,
			ClarificationQuestion: clarificationQuestion(active),
		}
	}
	return Resolution{}
}

func clarificationQuestion(active []ChallengeRef) string {
	var b strings.Builder
	b.WriteString("Which challenge should I help you with?")
	for i, c := range active {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, c.Title, c.Status)
	}
	return b.String()
}

// recentChallenge looks at the last few messages, newest first, for one that names exactly
// one known challenge by id or full title. Both must match on whole words.
func recentChallenge(history []domain.Message, challenges []ChallengeRef) (string, bool) {
	start := max(len(history)-historyWindow, 0)
	for i := len(history) - 1; i >= start; i-- {
		words := wordRe.FindAllString(strings.ToLower(history[i].Text), -1)
		found := ""
		count := 0
		for _, c := range challenges {
			byID := containsWords(words, wordRe.FindAllString(strings.ToLower(c.ID), -1))
			byTitle := containsWords(words, wordRe.FindAllString(strings.ToLower(c.Title), -1))
			if byID || byTitle {
				found = c.ID
				count++
			}
		}
		if count == 1 {
			return found, true
		}
	}
	return "", false
}

// containsWords reports whether seq appears as a contiguous run of whole words in words.
func containsWords(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j, w := range seq {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// requiresChallengeContext matches the phrase list against the raw text and against its
// words with filler removed.
func requiresChallengeContext(lower string) bool {
	words := wordRe.FindAllString(lower, -1)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if !fillerWords[w] {
			kept = append(kept, w)
		}
	}
	normalized := " " + strings.Join(kept, " ")
	for _, p := range contextPhrases {
		if strings.Contains(lower, p) || strings.Contains(normalized, " "+p) {
			return true
		}
	}
	return false
}

// mentionsTitle reports whether the message contains the title, or the title contains the
// message with punctuation stripped.
func mentionsTitle(lower, title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return false
	}
	if strings.Contains(lower, t) {
		return true
	}
	stripped := strings.TrimSpace(punctuationRe.ReplaceAllString(lower, ""))
	return stripped != "" && strings.Contains(t, stripped)
}
