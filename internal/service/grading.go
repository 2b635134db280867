package service

import (
	"math"

	"learning_progress_backend/internal/model"
)

// Outcome 多次尝试按判分方式折算后的有效结果
type Outcome struct {
	Completed            bool              `json:"completed"`
	Score                int               `json:"score"`
	CompletionPercentage int               `json:"completionPercentage"`
	TimeSpent            int               `json:"timeSpent"`
	Attempt              int               `json:"attempt"` // AVERAGE 为合成结果，取 0
	Status               model.TrackStatus `json:"status"`
}

// ResolveOutcome 纯函数：同一学员同一课时的全部尝试 + 课时策略 -> 有效结果
func ResolveOutcome(attempts []model.LessonTrack, lesson *model.Lesson) Outcome {
	if len(attempts) == 0 {
		return Outcome{Status: model.TrackNotStarted}
	}

	// 活动类课时不看判分方式
	if lesson.Format == model.FormatEvent {
		return resolveEvent(attempts)
	}

	switch lesson.AttemptsGradeMethod {
	case model.GradeFirstAttempt:
		return resolveFirst(attempts)
	case model.GradeHighest:
		return resolveHighest(attempts)
	case model.GradeAverage:
		return resolveAverage(attempts, lesson)
	case model.GradeLastAttempt:
		return resolveLast(attempts)
	}
	return resolveLast(attempts)
}

func outcomeOf(t *model.LessonTrack) Outcome {
	return Outcome{
		Completed:            t.Status == model.TrackCompleted,
		Score:                t.Score,
		CompletionPercentage: t.CompletionPercentage,
		TimeSpent:            t.TimeSpent,
		Attempt:              t.Attempt,
		Status:               t.Status,
	}
}

// resolveFirst 只看第 1 次尝试，且必须为 COMPLETED
func resolveFirst(attempts []model.LessonTrack) Outcome {
	first := &attempts[0]
	for i := range attempts {
		if attempts[i].Attempt < first.Attempt {
			first = &attempts[i]
		}
	}
	return outcomeOf(first)
}

func resolveLast(attempts []model.LessonTrack) Outcome {
	last := &attempts[0]
	for i := range attempts {
		if attempts[i].Attempt > last.Attempt {
			last = &attempts[i]
		}
	}
	return outcomeOf(last)
}

// resolveHighest 分数相同时取先遇到的
func resolveHighest(attempts []model.LessonTrack) Outcome {
	best := &attempts[0]
	for i := 1; i < len(attempts); i++ {
		if attempts[i].Score > best.Score {
			best = &attempts[i]
		}
	}
	return outcomeOf(best)
}

func resolveAverage(attempts []model.LessonTrack, lesson *model.Lesson) Outcome {
	var score, percentage, timeSpent int
	for _, a := range attempts {
		score += a.Score
		percentage += a.CompletionPercentage
		timeSpent += a.TimeSpent
	}
	n := float64(len(attempts))
	mean := float64(score) / n

	out := Outcome{
		Score:                int(math.Round(mean)),
		CompletionPercentage: int(math.Round(float64(percentage) / n)),
		TimeSpent:            int(math.Round(float64(timeSpent) / n)),
	}

	// 及格判断用未取整的平均分，展示值才取整
	if lesson.HasPassingThreshold() {
		total := float64(*lesson.TotalMarks)
		out.Completed = mean/total*100 >= float64(*lesson.PassingMarks)/total*100
	} else {
		// 未配置及格线时，有尝试即视为完成
		out.Completed = true
	}

	out.Status = resolveLast(attempts).Status
	if out.Completed {
		out.Status = model.TrackCompleted
	}
	return out
}

// resolveEvent 任一尝试 COMPLETED 即完成
func resolveEvent(attempts []model.LessonTrack) Outcome {
	for i := range attempts {
		if attempts[i].Status == model.TrackCompleted {
			return outcomeOf(&attempts[i])
		}
	}
	return resolveLast(attempts)
}
