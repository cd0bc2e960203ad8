package osu

// SubmissionStatus classifies a submitted score against the player's
// history on the map.
type SubmissionStatus uint8

const (
	StatusFailed    SubmissionStatus = 0
	StatusSubmitted SubmissionStatus = 1
	StatusBest      SubmissionStatus = 2
)

// RankedStatus is the server-side beatmap ranking state.
type RankedStatus int8

const (
	MapNotSubmitted    RankedStatus = -1
	MapPending         RankedStatus = 0
	MapUpdateAvailable RankedStatus = 1
	MapRanked          RankedStatus = 2
	MapApproved        RankedStatus = 3
	MapQualified       RankedStatus = 4
	MapLoved           RankedStatus = 5
)

// HasLeaderboard reports whether scores on the map keep a leaderboard.
func (r RankedStatus) HasLeaderboard() bool {
	return r >= MapRanked && r <= MapLoved
}

// AwardsRankedPP reports whether best scores on the map count toward
// weighted pp and ranked score.
func (r RankedStatus) AwardsRankedPP() bool {
	return r == MapRanked || r == MapApproved
}
