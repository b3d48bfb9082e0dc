// Package criteria decides badge eligibility from a user's recorded facts.
//
// A criterion is stored as "kind:threshold" and parsed once, when the catalog
// is loaded, into a Criterion. Evaluation is read-only: it never grants.
package criteria

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindCompletedCourses    Kind = "concluiu_n_cursos"
	KindDistinctDepartments Kind = "concluiu_n_areas_diferentes"
	KindXpTotal             Kind = "xp_total"
	KindSameCategory        Kind = "cursos_mesma_categoria"
	KindStreakDays          Kind = "streak_dias"
	KindCoursesThisMonth    Kind = "cursos_no_mes"

	// kindPointsRequired is accepted as an alias of KindXpTotal.
	kindPointsRequired Kind = "pontos_necessarios"
)

var (
	ErrMissingCriterion   = errors.New("badge has no criterion")
	ErrMalformedCriterion = errors.New("malformed criterion")
	ErrUnknownKind        = errors.New("unknown criterion kind")
)

// Criterion is a parsed predicate: the measured fact for Kind must reach Threshold.
type Criterion struct {
	Kind      Kind
	Threshold int64
}

func (c Criterion) String() string {
	return fmt.Sprintf("%s:%d", c.Kind, c.Threshold)
}

// Parse validates raw and returns its Criterion. Aliases are normalised.
func Parse(raw string) (Criterion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Criterion{}, ErrMissingCriterion
	}

	kind, value, ok := strings.Cut(raw, ":")
	if !ok {
		return Criterion{}, fmt.Errorf("%w: %q has no threshold", ErrMalformedCriterion, raw)
	}

	threshold, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return Criterion{}, fmt.Errorf("%w: %q threshold is not an integer", ErrMalformedCriterion, raw)
	}
	if threshold < 0 {
		return Criterion{}, fmt.Errorf("%w: %q threshold is negative", ErrMalformedCriterion, raw)
	}

	k := Kind(strings.TrimSpace(kind))
	switch k {
	case KindCompletedCourses, KindDistinctDepartments, KindXpTotal,
		KindSameCategory, KindStreakDays, KindCoursesThisMonth:
	case kindPointsRequired:
		k = KindXpTotal
	default:
		return Criterion{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return Criterion{Kind: k, Threshold: threshold}, nil
}
