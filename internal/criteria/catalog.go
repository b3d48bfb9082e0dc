package criteria

import (
	"errors"

	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
)

// Entry pairs a badge with its parsed criterion, or the reason it could not be parsed.
type Entry struct {
	Badge     model.Badge
	Criterion Criterion
	Err       error
}

type Catalog []Entry

// NewCatalog parses every badge criterion once. Defective criteria are kept
// in the catalog with Err set and reported here, so evaluation can carry on
// with the remaining badges.
func NewCatalog(badges []model.Badge, log *logrus.Logger) Catalog {
	catalog := make(Catalog, 0, len(badges))
	for _, b := range badges {
		entry := Entry{Badge: b}

		raw := ""
		if b.Criterion != nil {
			raw = *b.Criterion
		}
		entry.Criterion, entry.Err = Parse(raw)

		if entry.Err != nil && !errors.Is(entry.Err, ErrMissingCriterion) {
			log.WithFields(logrus.Fields{
				"badge_code": b.Code,
				"criterion":  raw,
				"error":      entry.Err,
			}).Warn("badge criterion is invalid, badge will not be awarded")
		}

		catalog = append(catalog, entry)
	}
	return catalog
}
