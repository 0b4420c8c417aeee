package gameweek

import "errors"

var ErrNoGameweeks = errors.New("no gameweeks in reference data")

// Gameweek is one discrete scoring round of the season.
type Gameweek struct {
	ID          int
	Name        string
	IsCurrent   bool
	Finished    bool
	DataChecked bool
}

// Resolve picks the gameweek the engine should score against.
// Priority order: the current gameweek, else the most recently finished
// one, else the soonest upcoming one. Fails on an empty list.
func Resolve(weeks []Gameweek) (Gameweek, error) {
	if len(weeks) == 0 {
		return Gameweek{}, ErrNoGameweeks
	}

	for _, week := range weeks {
		if week.IsCurrent {
			return week, nil
		}
	}

	lastFinished := Gameweek{}
	for _, week := range weeks {
		if week.Finished && week.ID > lastFinished.ID {
			lastFinished = week
		}
	}
	if lastFinished.ID > 0 {
		return lastFinished, nil
	}

	next := weeks[0]
	for _, week := range weeks[1:] {
		if week.ID < next.ID {
			next = week
		}
	}
	return next, nil
}
