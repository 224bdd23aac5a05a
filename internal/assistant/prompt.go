package assistant

import (
	"fmt"
	"strings"

	"devtracker/internal/domain"
)

const promptIntro = `You are an AI assistant for a dev challenge tracker. You can help users manage their challenges, tasks, ideas, and resources.
Format every reply as clean Markdown with headings and bullet lists. Keep sections short and readable.`

// FirstPassPrompt is the system message for the initial model call.
func FirstPassPrompt(contextChallengeID string) string {
	var b strings.Builder
	b.WriteString(promptIntro)
	b.WriteString("\n\nAvailable functions (Make sure to send text in markdown format):\n")
	b.WriteString(`- createChallenge: Create a new challenge (make sure the description includes all details about this challenge provided by the user or found at a link they sent. Focus on the challenge itself)
- addTask: Add a task to a challenge
- addIdea: Add an idea to a challenge
- addResource: Add a resource to a challenge
- getChallengeList: Get list of challenges
- getChallengeDetails: Get details of a specific challenge`)
	b.WriteString("\n\nCurrent context: ")
	if contextChallengeID != "" {
		fmt.Fprintf(&b, "Working on challenge %s", contextChallengeID)
	} else {
		b.WriteString("No specific challenge context")
	}
	b.WriteString("\n\nIMPORTANT: When adding tasks, ideas, or resources to a specific challenge:\n")
	if contextChallengeID != "" {
		fmt.Fprintf(&b, "- Always include challengeId: %q in your function calls for addTask, addIdea, and addResource\n", contextChallengeID)
		fmt.Fprintf(&b, "- You are currently working on challenge %s, so unless the user explicitly mentions a different challenge, add items to this challenge", contextChallengeID)
	} else {
		b.WriteString("- If the user is working on a specific challenge, make sure to include the challengeId parameter\n")
		b.WriteString("- If no specific challenge is mentioned, you may need to ask for clarification or create a new challenge first")
	}
	b.WriteString("\n\nBe helpful, concise, and proactive in suggesting actions.")
	return b.String()
}

// FollowUpPrompt is the system message for the call that carries tool results. It lists the
// challenges as they are after the batch ran.
func FollowUpPrompt(contextChallengeID string, challenges []domain.Challenge) string {
	var b strings.Builder
	b.WriteString(promptIntro)
	b.WriteString("\n\nAvailable functions (Make sure to send text in markdown format):\n")
	b.WriteString(`- createChallenge: Create a new challenge (only when user explicitly wants to create a NEW challenge. Format the description as Markdown with main headings (##) and bullet points)
- addTask: Add a task to an EXISTING challenge (format notes as Markdown with ### and #### subheadings and bullet points)
- addIdea: Add an idea to an EXISTING challenge (format notes as Markdown with ### and #### subheadings and bullet points)
- addResource: Add a resource to an EXISTING challenge (format notes as Markdown with ### and #### subheadings and bullet points)
- getChallengeList: Get list of challenges
- getChallengeDetails: Get details of a specific challenge`)
	b.WriteString("\n\nCurrent context: ")
	if contextChallengeID != "" {
		fmt.Fprintf(&b, "Working on challenge %s. When creating tasks, ideas, or resources, use this challengeId unless the user specifies a different challenge.", contextChallengeID)
	} else {
		b.WriteString("No specific challenge context")
	}
	b.WriteString("\n\nCurrent challenges: ")
	lines := make([]string, 0, len(challenges))
	for _, c := range challenges {
		lines = append(lines, fmt.Sprintf("- %s (ID: %s)", c.Title, c.ID))
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString(`

IMPORTANT:
- When users ask for "ideas for [challenge name]" or similar, use addIdea to add to the EXISTING challenge, do NOT create a new challenge
- When adding tasks, ideas, or resources, always include the challengeId parameter
- Only use createChallenge when the user explicitly wants to create a brand new challenge

Be helpful, concise, and proactive in suggesting actions.`)
	return b.String()
}
