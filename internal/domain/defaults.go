package domain

import "time"

// DefaultState is the sample workspace shown on first launch.
func DefaultState(now time.Time) State {
	day := 24 * time.Hour
	at := func(d time.Duration) *time.Time {
		t := now.Add(d).UTC()
		return &t
	}
	return State{
		Challenges: []Challenge{
			{
				ID:          "spring-community-build",
				Title:       "Spring Community Health Hackathon",
				Theme:       "Community, open-source, health-tech alliances",
				Status:      StatusDrafting,
				Deadline:    at(0),
				Progress:    38,
				Description: "Outline an actionable playbook for a health-focused open-source initiative with strong DEV community involvement.",
				Tags:        []string{"health", "open-source", "community"},
			},
			{
				ID:          "ai-mentorship-network",
				Title:       "AI Mentorship Network",
				Theme:       "AI education, mentorship, onboarding",
				Status:      StatusIdeation,
				Deadline:    at(14 * day),
				Progress:    12,
				Description: "Design a mentorship journey for DEV learners exploring AI tools, from discovery to publishing.",
				Tags:        []string{"ai", "mentorship", "learning"},
			},
		},
		Tasks: []Task{
			{
				ID:          "outline-case-studies",
				ChallengeID: "spring-community-build",
				Title:       "Outline community case studies",
				Status:      TaskInProgress,
				DueDate:     at(3 * day),
				Notes:       "Focus on stories with measurable health outcomes.",
			},
			{
				ID:          "collect-mentor-feedback",
				ChallengeID: "ai-mentorship-network",
				Title:       "Collect mentor expectations",
				Status:      TaskNotStarted,
				DueDate:     at(6 * day),
			},
		},
		Ideas: []Idea{
			{
				ID:          "community-office-hours",
				ChallengeID: "spring-community-build",
				Title:       "Community office hours",
				Impact:      ImpactHigh,
				Notes:       "Live streaming Q&A with health projects to show the open-source processes and invite contributions.",
				Tags:        []string{"stream", "community"},
			},
			{
				ID:     "ai-learning-sprints",
				Title:  "AI learning sprints",
				Impact: ImpactQuickWin,
				Notes:  "Create 7-day sprint templates combining DEV articles, GitHub repos, and short video explainers.",
				Tags:   []string{"ai", "curriculum"},
			},
		},
		Resources: []Resource{
			{
				ID:          "dev-oss-health-guide",
				ChallengeID: "spring-community-build",
				Title:       "DEV Guide: Running Health-focused OSS",
				URL:         "https://dev.to/collection/health-open-source",
				Type:        ResourceArticle,
				Notes:       "Case studies and partner requirements.",
				Tags:        []string{"health", "oss"},
			},
			{
				ID:    "ai-mentorship-canvas",
				Title: "Mentorship Program Canvas",
				URL:   "https://dev.to/templates/mentorship-canvas",
				Type:  ResourceTool,
				Notes: "Use for mapping onboarding flows and metrics.",
				Tags:  []string{"template", "mentorship"},
			},
		},
	}
}
