package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"devtracker/internal/domain"
)

type Stats struct {
	Challenges        int                            `json:"challenges"`
	ActiveChallenges  int                            `json:"activeChallenges"`
	Tasks             int                            `json:"tasks"`
	OpenTasks         int                            `json:"openTasks"`
	Ideas             int                            `json:"ideas"`
	Resources         int                            `json:"resources"`
	AverageCompletion int                            `json:"averageCompletion"`
	ByStatus          map[domain.ChallengeStatus]int `json:"byStatus"`
	Upcoming          []domain.Challenge             `json:"upcomingChallenges"`
	UpcomingTasks     []domain.Task                  `json:"upcomingTasks"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	st, err := e.Snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Derive(st), nil
}

// Derive computes dashboard figures. Upcoming lists are ordered by date with undated
// entries last.
func Derive(st domain.State) Stats {
	s := Stats{
		Challenges: len(st.Challenges),
		Tasks:      len(st.Tasks),
		Ideas:      len(st.Ideas),
		Resources:  len(st.Resources),
		ByStatus:   map[domain.ChallengeStatus]int{},
	}
	total := 0
	for _, c := range st.Challenges {
		total += c.Progress
		s.ByStatus[c.Status]++
		if c.Status.Active() {
			s.ActiveChallenges++
		}
	}
	if len(st.Challenges) > 0 {
		s.AverageCompletion = int(math.Round(float64(total) / float64(len(st.Challenges))))
	}

	s.Upcoming = append([]domain.Challenge{}, st.Challenges...)
	sort.SliceStable(s.Upcoming, func(i, j int) bool {
		return before(s.Upcoming[i].Deadline, s.Upcoming[j].Deadline)
	})

	s.UpcomingTasks = append([]domain.Task{}, st.Tasks...)
	for _, t := range st.Tasks {
		if t.Status != domain.TaskDone {
			s.OpenTasks++
		}
	}
	sort.SliceStable(s.UpcomingTasks, func(i, j int) bool {
		return before(s.UpcomingTasks[i].DueDate, s.UpcomingTasks[j].DueDate)
	})
	return s
}

func before(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}
