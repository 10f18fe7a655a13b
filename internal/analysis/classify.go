package analysis

// Quality is the label attached to a single move.
type Quality string

const (
	Best       Quality = "Best"
	Good       Quality = "Good"
	Inaccurate Quality = "Inaccurate"
	Mistake    Quality = "Mistake"
	Blunder    Quality = "Blunder"
)

// Qualities lists every label in ascending severity.
var Qualities = []Quality{Best, Good, Inaccurate, Mistake, Blunder}

// Exclusive upper bounds, in centipawns.
const (
	bestBelow       = 50
	goodBelow       = 100
	inaccurateBelow = 300
	mistakeBelow    = 600
)

func ClassifyLoss(loss int) Quality {
	if loss < 0 {
		loss = -loss
	}
	switch {
	case loss < bestBelow:
		return Best
	case loss < goodBelow:
		return Good
	case loss < inaccurateBelow:
		return Inaccurate
	case loss < mistakeBelow:
		return Mistake
	default:
		return Blunder
	}
}

// Classify grades a move from two evaluations taken from the same perspective.
func Classify(before, after int) (Quality, int) {
	loss := after - before
	if loss < 0 {
		loss = -loss
	}
	return ClassifyLoss(loss), loss
}
