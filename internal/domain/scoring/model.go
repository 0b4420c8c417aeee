package scoring

import "time"

// EventType enumerates the scoring event kinds the rule table can emit.
type EventType string

const (
	EventMinutesPlayed EventType = "minutesPlayed"
	EventGoal          EventType = "goal"
	EventAssist        EventType = "assist"
	EventCleanSheet    EventType = "cleanSheet"
	EventGoalsConceded EventType = "goalsConceded"
	EventSave          EventType = "save"
	EventPenaltySave   EventType = "penaltySave"
	EventPenaltyMiss   EventType = "penaltyMiss"
	EventOwnGoal       EventType = "ownGoal"
	EventYellowCard    EventType = "yellowCard"
	EventRedCard       EventType = "redCard"
	EventBonus         EventType = "bonus"
)

// Event is one discrete scoring occurrence for a player. Append-only within
// a polling session, never mutated after creation.
type Event struct {
	Type       EventType `json:"type"`
	Player     string    `json:"player"`
	Points     int       `json:"points"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PlayerStats is the live per-player, per-gameweek statistic snapshot as
// reported upstream. It is replaced wholesale every poll; deltas are derived
// by comparing two successive snapshots.
type PlayerStats struct {
	Minutes         int `json:"minutes"`
	GoalsScored     int `json:"goals_scored"`
	Assists         int `json:"assists"`
	CleanSheets     int `json:"clean_sheets"`
	GoalsConceded   int `json:"goals_conceded"`
	OwnGoals        int `json:"own_goals"`
	PenaltiesSaved  int `json:"penalties_saved"`
	PenaltiesMissed int `json:"penalties_missed"`
	YellowCards     int `json:"yellow_cards"`
	RedCards        int `json:"red_cards"`
	Saves           int `json:"saves"`
	Bonus           int `json:"bonus"`
	TotalPoints     int `json:"total_points"`
}
