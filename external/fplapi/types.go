package fplapi

// Wire envelopes for the upstream Fantasy Premier League API. Field sets are
// trimmed to what the engine consumes; unknown fields are ignored on decode.

type bootstrapEnvelope struct {
	Events   []eventItem   `json:"events"`
	Teams    []teamItem    `json:"teams"`
	Elements []elementItem `json:"elements"`
}

type eventItem struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	IsCurrent   bool   `json:"is_current"`
	Finished    bool   `json:"finished"`
	DataChecked bool   `json:"data_checked"`
}

type teamItem struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

type elementItem struct {
	ID          int64  `json:"id"`
	WebName     string `json:"web_name"`
	Team        int64  `json:"team"`
	ElementType int    `json:"element_type"`
}

type fixtureItem struct {
	ID        int64   `json:"id"`
	Event     *int    `json:"event"`
	Kickoff   *string `json:"kickoff_time"`
	Finished  bool    `json:"finished"`
	TeamHome  int64   `json:"team_h"`
	TeamAway  int64   `json:"team_a"`
	HomeScore *int    `json:"team_h_score"`
	AwayScore *int    `json:"team_a_score"`
}

type liveEnvelope struct {
	Elements []liveElementItem `json:"elements"`
}

type liveElementItem struct {
	ID    int64         `json:"id"`
	Stats liveStatsItem `json:"stats"`
}

type liveStatsItem struct {
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

type picksEnvelope struct {
	EntryHistory entryHistoryItem `json:"entry_history"`
	Picks        []pickItem       `json:"picks"`
}

type entryHistoryItem struct {
	Event       int `json:"event"`
	Points      int `json:"points"`
	TotalPoints int `json:"total_points"`
	OverallRank int `json:"overall_rank"`
}

type pickItem struct {
	Element       int64 `json:"element"`
	Position      int   `json:"position"`
	Multiplier    int   `json:"multiplier"`
	IsCaptain     bool  `json:"is_captain"`
	IsViceCaptain bool  `json:"is_vice_captain"`
}

type entryEnvelope struct {
	ID                   int64  `json:"id"`
	PlayerFirstName      string `json:"player_first_name"`
	PlayerLastName       string `json:"player_last_name"`
	Name                 string `json:"name"`
	SummaryOverallPoints int    `json:"summary_overall_points"`
	SummaryOverallRank   int    `json:"summary_overall_rank"`
}
