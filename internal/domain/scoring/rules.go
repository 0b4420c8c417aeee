package scoring

import (
	"time"

	"github.com/fplive/fplive/internal/domain/player"
)

var goalPointsByPosition = map[player.Position]int{
	player.PositionGoalkeeper: 10,
	player.PositionDefender:   6,
	player.PositionMidfielder: 5,
	player.PositionForward:    4,
}

var cleanSheetPointsByPosition = map[player.Position]int{
	player.PositionGoalkeeper: 4,
	player.PositionDefender:   4,
	player.PositionMidfielder: 1,
	player.PositionForward:    0,
}

const defaultGoalPoints = 4

type rule struct {
	kind EventType
	// eval returns the point value for the rule against one snapshot and
	// whether the rule fires at all.
	eval func(s PlayerStats, pos player.Position) (int, bool)
	// changed reports whether any counter the rule reads differs between
	// two successive snapshots.
	changed func(prev, curr PlayerStats) bool
}

// ruleTable reproduces the upstream scoring rules exactly. The thresholds
// and point values are the contract under test and must not be altered.
var ruleTable = []rule{
	{
		kind: EventMinutesPlayed,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			switch {
			case s.Minutes > 59:
				return 2, true
			case s.Minutes > 0:
				return 1, true
			default:
				return 0, false
			}
		},
		changed: func(prev, curr PlayerStats) bool { return prev.Minutes != curr.Minutes },
	},
	{
		kind: EventGoal,
		eval: func(s PlayerStats, pos player.Position) (int, bool) {
			if s.GoalsScored <= 0 {
				return 0, false
			}
			perGoal, ok := goalPointsByPosition[pos]
			if !ok {
				perGoal = defaultGoalPoints
			}
			return s.GoalsScored * perGoal, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.GoalsScored != curr.GoalsScored },
	},
	{
		kind: EventAssist,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			if s.Assists <= 0 {
				return 0, false
			}
			return s.Assists * 3, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.Assists != curr.Assists },
	},
	{
		kind: EventCleanSheet,
		eval: func(s PlayerStats, pos player.Position) (int, bool) {
			if s.CleanSheets <= 0 {
				return 0, false
			}
			points := cleanSheetPointsByPosition[pos]
			if points <= 0 {
				return 0, false
			}
			return points, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.CleanSheets != curr.CleanSheets },
	},
	{
		kind: EventGoalsConceded,
		eval: func(s PlayerStats, pos player.Position) (int, bool) {
			if pos != player.PositionGoalkeeper && pos != player.PositionDefender {
				return 0, false
			}
			if s.GoalsConceded < 2 {
				return 0, false
			}
			return -(s.GoalsConceded / 2), true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.GoalsConceded != curr.GoalsConceded },
	},
	{
		kind: EventSave,
		eval: func(s PlayerStats, pos player.Position) (int, bool) {
			if pos != player.PositionGoalkeeper || s.Saves < 3 {
				return 0, false
			}
			return s.Saves / 3, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.Saves != curr.Saves },
	},
	{
		kind: EventPenaltySave,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			if s.PenaltiesSaved <= 0 {
				return 0, false
			}
			return s.PenaltiesSaved * 5, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.PenaltiesSaved != curr.PenaltiesSaved },
	},
	{
		kind: EventPenaltyMiss,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			if s.PenaltiesMissed <= 0 {
				return 0, false
			}
			return s.PenaltiesMissed * -2, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.PenaltiesMissed != curr.PenaltiesMissed },
	},
	{
		kind: EventOwnGoal,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			if s.OwnGoals <= 0 {
				return 0, false
			}
			return s.OwnGoals * -2, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.OwnGoals != curr.OwnGoals },
	},
	{
		kind: EventYellowCard,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			if s.YellowCards <= 0 {
				return 0, false
			}
			return s.YellowCards * -1, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.YellowCards != curr.YellowCards },
	},
	{
		kind: EventRedCard,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			if s.RedCards <= 0 {
				return 0, false
			}
			return s.RedCards * -3, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.RedCards != curr.RedCards },
	},
	{
		kind: EventBonus,
		eval: func(s PlayerStats, _ player.Position) (int, bool) {
			if s.Bonus <= 0 {
				return 0, false
			}
			return s.Bonus, true
		},
		changed: func(prev, curr PlayerStats) bool { return prev.Bonus != curr.Bonus },
	},
}

// Evaluate runs the full rule table against one snapshot. Pure: identical
// input always yields the identical event set, in rule-table order. Rules
// are non-exclusive; one snapshot can fire several of them.
func Evaluate(stats PlayerStats, pos player.Position, playerName string, at time.Time) []Event {
	out := make([]Event, 0, 4)
	for _, r := range ruleTable {
		points, ok := r.eval(stats, pos)
		if !ok {
			continue
		}
		out = append(out, Event{Type: r.kind, Player: playerName, Points: points, OccurredAt: at})
	}
	return out
}

// Diff evaluates the current snapshot but keeps only rule results whose
// underlying counters moved since the previous snapshot. This is the
// notification-path delta: an unchanged stat is never re-announced.
func Diff(prev, curr PlayerStats, pos player.Position, playerName string, at time.Time) []Event {
	out := make([]Event, 0, 2)
	for _, r := range ruleTable {
		if !r.changed(prev, curr) {
			continue
		}
		points, ok := r.eval(curr, pos)
		if !ok {
			continue
		}
		out = append(out, Event{Type: r.kind, Player: playerName, Points: points, OccurredAt: at})
	}
	return out
}
