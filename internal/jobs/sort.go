package jobs

import (
	"sort"

	"github.com/gcbaptista/medlex-spotter/model"
)

func sortJobs(jobs []*model.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
