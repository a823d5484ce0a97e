package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/habitloop/habitloop-core/internal/application/command"
	"github.com/habitloop/habitloop-core/internal/application/query"
	"github.com/habitloop/habitloop-core/internal/domain/achievement"
	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

// AchievementReader lists a user's unlocked achievements.
type AchievementReader interface {
	ListByUser(ctx context.Context, userID string) ([]achievement.Unlock, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-INS
// ══════════════════════════════════════════════════════════════════════════════

type submitCheckinRequest struct {
	HabitID              string           `json:"habit_id"`
	OccurredAt           time.Time        `json:"occurred_at"`
	CompletionPercentage int              `json:"completion_percentage"`
	DurationMinutes      int              `json:"duration_minutes,omitempty"`
	MoodBefore           int              `json:"mood_before,omitempty"`
	MoodAfter            int              `json:"mood_after,omitempty"`
	Notes                string           `json:"notes,omitempty"`
	Location             string           `json:"location,omitempty"`
	Evidence             *evidencePayload `json:"evidence,omitempty"`
}

// evidencePayload is the wire form of the evidence variant: a kind tag
// plus exactly one payload object.
type evidencePayload struct {
	Kind string `json:"kind"`

	Media *struct {
		URL       string `json:"url"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"media,omitempty"`
	Timer *struct {
		StartedAt       time.Time `json:"started_at"`
		DurationSeconds int       `json:"duration_seconds"`
	} `json:"timer,omitempty"`
	GPS *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		AccuracyM float64 `json:"accuracy_m"`
	} `json:"gps,omitempty"`
	Sensor *struct {
		Source string  `json:"source"`
		Metric string  `json:"metric"`
		Value  float64 `json:"value"`
	} `json:"sensor,omitempty"`
}

func (p *evidencePayload) toDomain() *habit.Evidence {
	if p == nil {
		return nil
	}
	ev := &habit.Evidence{Kind: habit.EvidenceKind(p.Kind)}
	if p.Media != nil {
		ev.Media = &habit.MediaEvidence{URL: p.Media.URL, SizeBytes: p.Media.SizeBytes}
	}
	if p.Timer != nil {
		ev.Timer = &habit.TimerEvidence{
			StartedAt: p.Timer.StartedAt,
			Duration:  time.Duration(p.Timer.DurationSeconds) * time.Second,
		}
	}
	if p.GPS != nil {
		ev.GPS = &habit.GPSEvidence{Latitude: p.GPS.Latitude, Longitude: p.GPS.Longitude, AccuracyM: p.GPS.AccuracyM}
	}
	if p.Sensor != nil {
		ev.Sensor = &habit.SensorEvidence{Source: p.Sensor.Source, Metric: p.Sensor.Metric, Value: p.Sensor.Value}
	}
	return ev
}

type submitCheckinResponse struct {
	LogID                 string   `json:"log_id"`
	PeriodKey             string   `json:"period_key"`
	CurrentStreak         int      `json:"current_streak"`
	LongestStreak         int      `json:"longest_streak"`
	PointsEarned          int      `json:"points_earned"`
	TotalPoints           int      `json:"total_points"`
	PeriodBecameSatisfied bool     `json:"period_became_satisfied"`
	Backfill              bool     `json:"backfill"`
	AchievementsUnlocked  []string `json:"achievements_unlocked,omitempty"`
}

func (s *Server) handleSubmitCheckin(w http.ResponseWriter, r *http.Request) {
	var req submitCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	result, err := s.deps.SubmitCheckin.Handle(r.Context(), command.SubmitCheckinCommand{
		UserHabitID:          req.HabitID,
		UserID:               r.Header.Get("X-User-ID"),
		OccurredAt:           req.OccurredAt,
		CompletionPercentage: req.CompletionPercentage,
		DurationMinutes:      req.DurationMinutes,
		MoodBefore:           req.MoodBefore,
		MoodAfter:            req.MoodAfter,
		Notes:                req.Notes,
		Location:             req.Location,
		Evidence:             req.Evidence.toDomain(),
		CorrelationID:        requestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	unlocked := make([]string, 0, len(result.AchievementsUnlocked))
	for _, t := range result.AchievementsUnlocked {
		unlocked = append(unlocked, string(t))
	}
	writeJSON(w, http.StatusCreated, submitCheckinResponse{
		LogID:                 result.LogID,
		PeriodKey:             result.PeriodKey,
		CurrentStreak:         result.NewStreak,
		LongestStreak:         result.LongestStreak,
		PointsEarned:          result.PointsEarned,
		TotalPoints:           result.TotalPoints,
		PeriodBecameSatisfied: result.PeriodBecameSatisfied,
		Backfill:              result.Backfill,
		AchievementsUnlocked:  unlocked,
	})
}

type correctCheckinRequest struct {
	HabitID              string `json:"habit_id"`
	CompletionPercentage int    `json:"completion_percentage"`
	Notes                string `json:"notes,omitempty"`
	Reason               string `json:"reason"`
}

func (s *Server) handleCorrectCheckin(w http.ResponseWriter, r *http.Request) {
	var req correctCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	result, err := s.deps.CorrectCheckin.Correct(r.Context(), command.CorrectCheckinCommand{
		UserHabitID:          req.HabitID,
		LogID:                r.PathValue("id"),
		ActorID:              r.Header.Get("X-User-ID"),
		Reason:               req.Reason,
		CompletionPercentage: req.CompletionPercentage,
		Notes:                req.Notes,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_streak": result.CurrentStreak,
		"longest_streak": result.LongestStreak,
		"streak_broken":  result.StreakBroken,
	})
}

type deleteCheckinRequest struct {
	HabitID string `json:"habit_id"`
	Reason  string `json:"reason"`
}

func (s *Server) handleDeleteCheckin(w http.ResponseWriter, r *http.Request) {
	var req deleteCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	result, err := s.deps.CorrectCheckin.Delete(r.Context(), command.DeleteCheckinCommand{
		UserHabitID: req.HabitID,
		LogID:       r.PathValue("id"),
		ActorID:     r.Header.Get("X-User-ID"),
		Reason:      req.Reason,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_streak": result.CurrentStreak,
		"longest_streak": result.LongestStreak,
		"streak_broken":  result.StreakBroken,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

type createHabitRequest struct {
	Name     string   `json:"name"`
	Type     string   `json:"frequency_type"`
	Count    int      `json:"frequency_count"`
	Days     []int    `json:"specific_days,omitempty"`
	Windows  []string `json:"time_windows,omitempty"`
	Timezone string   `json:"timezone"`
}

func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var req createHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	result, err := s.deps.ManageHabit.Create(r.Context(), command.CreateHabitCommand{
		UserID: r.Header.Get("X-User-ID"),
		Name:   req.Name,
		Frequency: habit.TargetFrequency{
			Type:         habit.FrequencyType(req.Type),
			Count:        req.Count,
			SpecificDays: req.Days,
			TimeWindows:  req.Windows,
		},
		Timezone: req.Timezone,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"habit_id": result.HabitID})
}

type patchHabitRequest struct {
	Active *bool `json:"active,omitempty"`

	Type    string   `json:"frequency_type,omitempty"`
	Count   int      `json:"frequency_count,omitempty"`
	Days    []int    `json:"specific_days,omitempty"`
	Windows []string `json:"time_windows,omitempty"`
}

func (s *Server) handlePatchHabit(w http.ResponseWriter, r *http.Request) {
	var req patchHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	habitID := r.PathValue("id")
	userID := r.Header.Get("X-User-ID")

	if req.Active != nil {
		err := s.deps.ManageHabit.SetActive(r.Context(), command.SetActiveCommand{
			UserHabitID: habitID,
			UserID:      userID,
			Active:      *req.Active,
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	if req.Type != "" {
		err := s.deps.ManageHabit.ChangeTarget(r.Context(), command.ChangeTargetCommand{
			UserHabitID: habitID,
			UserID:      userID,
			Frequency: habit.TargetFrequency{
				Type:         habit.FrequencyType(req.Type),
				Count:        req.Count,
				SpecificDays: req.Days,
				TimeWindows:  req.Windows,
			},
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetStreaks(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.GetStreaks.Handle(r.Context(), query.GetStreaksQuery{
		UserID:      r.Header.Get("X-User-ID"),
		UserHabitID: r.URL.Query().Get("habit_id"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"streaks": views})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	habitID := r.PathValue("habitID")
	if habitID == "" {
		habitID = r.URL.Query().Get("habit_id")
	}
	if habitID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "habit_id is required")
		return
	}

	start, end, err := reportWindow(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	view, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{
		UserHabitID: habitID,
		UserID:      r.Header.Get("X-User-ID"),
		Start:       start,
		End:         end,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// reportWindow resolves the optional reporting window of a progress
// request. Explicit start/end win over the period preset; with only a
// start the window runs until now. Presets anchor a window ending now.
func reportWindow(r *http.Request) (start, end time.Time, err error) {
	qs := r.URL.Query()
	rawStart, rawEnd := qs.Get("start"), qs.Get("end")

	if rawStart != "" || rawEnd != "" {
		if rawStart == "" {
			return start, end, errors.New("start is required when end is given")
		}
		if start, err = parseTimeParam(rawStart); err != nil {
			return start, end, errors.New("start must be a date (2006-01-02) or RFC 3339 timestamp")
		}
		end = time.Now().UTC()
		if rawEnd != "" {
			if end, err = parseTimeParam(rawEnd); err != nil {
				return start, end, errors.New("end must be a date (2006-01-02) or RFC 3339 timestamp")
			}
		}
		if !start.Before(end) {
			return start, end, errors.New("start must be before end")
		}
		return start, end, nil
	}

	switch preset := qs.Get("period"); preset {
	case "":
		return time.Time{}, time.Time{}, nil
	case "week":
		end = time.Now().UTC()
		return end.AddDate(0, 0, -7), end, nil
	case "month":
		end = time.Now().UTC()
		return end.AddDate(0, -1, 0), end, nil
	case "quarter":
		end = time.Now().UTC()
		return end.AddDate(0, -3, 0), end, nil
	default:
		return start, end, errors.New("period must be one of week, month, quarter")
	}
}

func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	unlocks, err := s.deps.Achievements.ListByUser(r.Context(), r.Header.Get("X-User-ID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	type unlockView struct {
		Type        string    `json:"type"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Points      int       `json:"points"`
		UnlockedAt  time.Time `json:"unlocked_at"`
	}
	views := make([]unlockView, 0, len(unlocks))
	for _, u := range unlocks {
		v := unlockView{Type: string(u.Type), UnlockedAt: u.UnlockedAt}
		if def, ok := achievement.DefinitionFor(u.Type); ok {
			v.Title = def.Title
			v.Description = def.Description
			v.Points = def.Points
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": views})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	for name, p := range map[string]Pinger{"postgres": s.deps.Postgres, "redis": s.deps.Redis} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"ready": ready, "checks": checks})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain error kinds onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err.Error())
	case shared.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case shared.IsState(err):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case shared.IsConflict(err):
		writeError(w, http.StatusConflict, "write_conflict", "concurrent update, please retry")
	case errors.Is(err, shared.ErrServiceUnavailable), errors.Is(err, shared.ErrTimeout):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "backing service unavailable")
	default:
		s.logger.Error("unhandled error", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_server_error", "an unexpected error occurred")
	}
}
