package badge

import (
	"context"
	"errors"
	"fmt"

	"gamification-service/internal/criteria"
	"gamification-service/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const (
	// ReprocessSource is recorded as the source event of grants made by a
	// manual re-evaluation.
	ReprocessSource = "manual-reprocess"
	reprocessLimit  = 1000
)

// ErrInvalidBadge wraps every validation failure of catalog input.
var ErrInvalidBadge = errors.New("invalid badge")

// Store is the badge catalog.
type Store interface {
	List(ctx context.Context) ([]model.Badge, error)
	Find(ctx context.Context, code string) (*model.Badge, error)
	Create(ctx context.Context, badge *model.Badge) error
	Update(ctx context.Context, code string, fields map[string]interface{}) (*model.Badge, error)
	Delete(ctx context.Context, code string) error
}

// UserLister lists the users a bulk re-evaluation visits.
type UserLister interface {
	ListIDs(ctx context.Context, limit int) ([]string, error)
}

// Outcome is the result of evaluating and, when satisfied, granting one badge.
type Outcome struct {
	BadgeCode string          `json:"badge_code"`
	Status    criteria.Status `json:"status"`
	Granted   bool            `json:"granted"`
	Reason    string          `json:"reason,omitempty"`
}

type ReprocessReport struct {
	Users   int `json:"users"`
	Granted int `json:"granted"`
	Failed  int `json:"failed"`
}

type Service struct {
	store     Store
	users     UserLister
	evaluator *criteria.Evaluator
	awarder   *Awarder
	validate  *validator.Validate
	log       *logrus.Logger
}

func NewService(store Store, users UserLister, evaluator *criteria.Evaluator, awarder *Awarder, log *logrus.Logger) *Service {
	return &Service{
		store:     store,
		users:     users,
		evaluator: evaluator,
		awarder:   awarder,
		validate:  validator.New(),
		log:       log,
	}
}

func (s *Service) catalog(ctx context.Context) (criteria.Catalog, error) {
	badges, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load badge catalog: %w", err)
	}
	return criteria.NewCatalog(badges, s.log), nil
}

// Evaluate returns the verdict for every badge without granting anything.
func (s *Service) Evaluate(ctx context.Context, userID string) ([]criteria.Verdict, error) {
	catalog, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluator.Evaluate(ctx, userID, catalog)
}

// EvaluateAndAward grants every badge the user newly satisfies. A failed
// grant stops the run and is returned with the outcomes gathered so far.
func (s *Service) EvaluateAndAward(ctx context.Context, userID, sourceEventID string) ([]Outcome, error) {
	verdicts, err := s.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(verdicts))
	for _, v := range verdicts {
		out := Outcome{BadgeCode: v.BadgeCode, Status: v.Status, Reason: v.Reason}

		if v.Status == criteria.Satisfied {
			granted, err := s.awarder.Grant(ctx, userID, v.BadgeCode, sourceEventID)
			if err != nil {
				return outcomes, fmt.Errorf("failed to grant %s to %s: %w", v.BadgeCode, userID, err)
			}
			out.Granted = granted
		}

		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// Reprocess re-evaluates one user, or when userID is empty the first
// reprocessLimit users. A failure for one user is logged and counted and
// the run moves on.
func (s *Service) Reprocess(ctx context.Context, userID string) (ReprocessReport, error) {
	ids := []string{userID}
	if userID == "" {
		var err error
		ids, err = s.users.ListIDs(ctx, reprocessLimit)
		if err != nil {
			return ReprocessReport{}, fmt.Errorf("failed to list users: %w", err)
		}
	}

	var report ReprocessReport
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Users++
		outcomes, err := s.EvaluateAndAward(ctx, id, ReprocessSource)
		for _, o := range outcomes {
			if o.Granted {
				report.Granted++
			}
		}
		if err != nil {
			report.Failed++
			s.log.WithError(err).WithField("user_id", id).Error("badge reprocessing failed for user")
		}
	}

	s.log.WithFields(logrus.Fields{
		"users":   report.Users,
		"granted": report.Granted,
		"failed":  report.Failed,
	}).Info("badge reprocessing completed")

	return report, nil
}

// Input is the writable part of a catalog entry.
type Input struct {
	Code           string  `json:"code" validate:"required,max=64"`
	Name           string  `json:"name" validate:"required,max=255"`
	Description    string  `json:"description"`
	Criterion      *string `json:"criterion" validate:"omitempty,max=255"`
	IconURL        *string `json:"icon_url" validate:"omitempty,url,max=512"`
	PointsRequired *int64  `json:"points_required" validate:"omitempty,gte=0"`
}

// Patch changes the given fields of an entry. Nil fields are left alone.
type Patch struct {
	Name           *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description    *string `json:"description"`
	Criterion      *string `json:"criterion" validate:"omitempty,max=255"`
	IconURL        *string `json:"icon_url" validate:"omitempty,url,max=512"`
	PointsRequired *int64  `json:"points_required" validate:"omitempty,gte=0"`
}

// checkCriterion rejects criteria that would never be evaluated. An empty
// criterion is allowed and marks a badge that is only granted by hand.
func checkCriterion(raw *string) error {
	if raw == nil || *raw == "" {
		return nil
	}
	if _, err := criteria.Parse(*raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]model.Badge, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, code string) (*model.Badge, error) {
	return s.store.Find(ctx, code)
}

func (s *Service) Create(ctx context.Context, in Input) (*model.Badge, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}
	if err := checkCriterion(in.Criterion); err != nil {
		return nil, err
	}

	b := &model.Badge{
		Code:           in.Code,
		Name:           in.Name,
		Description:    in.Description,
		Criterion:      emptyToNil(in.Criterion),
		IconURL:        in.IconURL,
		PointsRequired: in.PointsRequired,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) Update(ctx context.Context, code string, p Patch) (*model.Badge, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}
	if err := checkCriterion(p.Criterion); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Criterion != nil {
		fields["criterion"] = emptyToNil(p.Criterion)
	}
	if p.IconURL != nil {
		fields["icon_url"] = *p.IconURL
	}
	if p.PointsRequired != nil {
		fields["points_required"] = *p.PointsRequired
	}
	if len(fields) == 0 {
		return s.store.Find(ctx, code)
	}

	return s.store.Update(ctx, code, fields)
}

func (s *Service) Delete(ctx context.Context, code string) error {
	return s.store.Delete(ctx, code)
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
