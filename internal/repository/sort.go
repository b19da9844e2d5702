package repository

import (
	"sort"

	"github.com/hitoshi/sitetrack/internal/model"
)

// sortProjectsByID は案件をID昇順に並べ替える。
// インメモリ実装でPostgreSQL実装のORDER BYと同じ順序を保証するために使う。
func sortProjectsByID(projects []*model.Project) {
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ID < projects[j].ID
	})
}

// sortStepsByCreation は工程を作成日時昇順、同時刻はID昇順に並べ替える。
func sortStepsByCreation(steps []*model.ProgressStep) {
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].CreatedAt.Equal(steps[j].CreatedAt) {
			return steps[i].ID < steps[j].ID
		}
		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})
}
