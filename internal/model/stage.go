package model

// Stage names a point in the deadline-relative notification sequence.
// The empty stage means nothing has fired yet.
type Stage string

const (
	StageNone    Stage = ""
	StageHMinus3 Stage = "h_minus_3"
	StageHMinus2 Stage = "h_minus_2"
	StageHMinus1 Stage = "h_minus_1"
	StageDDay    Stage = "d_day"
	StageHPlus1  Stage = "h_plus_1"
	StageHPlus2  Stage = "h_plus_2"
	StageHPlus3  Stage = "h_plus_3"
)

// AllStages lists every stage in firing order.
var AllStages = []Stage{
	StageHMinus3,
	StageHMinus2,
	StageHMinus1,
	StageDDay,
	StageHPlus1,
	StageHPlus2,
	StageHPlus3,
}

// Rank orders stages; StageNone is 0 and sorts before everything.
// Unknown stages rank -1.
func (s Stage) Rank() int {
	if s == StageNone {
		return 0
	}
	for i, st := range AllStages {
		if st == s {
			return i + 1
		}
	}
	return -1
}

// After reports whether s comes strictly later than other.
func (s Stage) After(other Stage) bool {
	return s.Rank() > other.Rank()
}

func (s Stage) Valid() bool {
	return s.Rank() > 0
}

// Label is the short human form, e.g. H-3 or D-DAY.
func (s Stage) Label() string {
	switch s {
	case StageHMinus3:
		return "H-3"
	case StageHMinus2:
		return "H-2"
	case StageHMinus1:
		return "H-1"
	case StageDDay:
		return "D-DAY"
	case StageHPlus1:
		return "H+1"
	case StageHPlus2:
		return "H+2"
	case StageHPlus3:
		return "H+3"
	case StageNone:
		return "none"
	default:
		return string(s)
	}
}
