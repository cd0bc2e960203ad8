package osu

// Grade is the letter grade of a play. Ordering matters: lower values
// are better, and the stats grade histogram only tracks A and above.
type Grade uint8

const (
	GradeXH Grade = iota // SS with Hidden/Flashlight
	GradeX               // SS
	GradeSH              // S with Hidden/Flashlight
	GradeS
	GradeA
	GradeB
	GradeC
	GradeD
	GradeF
	GradeN
)

func (g Grade) String() string {
	switch g {
	case GradeXH, GradeX:
		return "SS"
	case GradeSH, GradeS:
		return "S"
	case GradeA:
		return "A"
	case GradeB:
		return "B"
	case GradeC:
		return "C"
	case GradeD:
		return "D"
	case GradeF:
		return "F"
	default:
		return "N"
	}
}

// ColumnName is the stats-table column for the grade, if tracked.
func (g Grade) ColumnName() (string, bool) {
	switch g {
	case GradeXH:
		return "xh_count", true
	case GradeX:
		return "x_count", true
	case GradeSH:
		return "sh_count", true
	case GradeS:
		return "s_count", true
	case GradeA:
		return "a_count", true
	default:
		return "", false
	}
}

// GradeFromString parses the grade letter from a score submission;
// hidden upgrades SS/S into their silver variants.
func GradeFromString(s string, hidden bool) Grade {
	switch s {
	case "SS", "X", "XH":
		if hidden {
			return GradeXH
		}
		return GradeX
	case "S", "SH":
		if hidden {
			return GradeSH
		}
		return GradeS
	case "A":
		return GradeA
	case "B":
		return GradeB
	case "C":
		return GradeC
	case "D":
		return GradeD
	case "F":
		return GradeF
	default:
		return GradeN
	}
}

// ParseGrade maps a stored grade name back to its enum value.
func ParseGrade(s string) Grade {
	switch s {
	case "XH":
		return GradeXH
	case "X":
		return GradeX
	case "SH":
		return GradeSH
	case "S":
		return GradeS
	case "A":
		return GradeA
	case "B":
		return GradeB
	case "C":
		return GradeC
	case "D":
		return GradeD
	case "F":
		return GradeF
	default:
		return GradeN
	}
}

// Name is the canonical stored form (distinguishes XH/X/SH/S).
func (g Grade) Name() string {
	return [...]string{"XH", "X", "SH", "S", "A", "B", "C", "D", "F", "N"}[g]
}
