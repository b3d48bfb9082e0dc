package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrMalformedEvent = errors.New("malformed event")

var validate = validator.New()

// Payload is one of ModuleCompleted, CourseCompleted, AssessmentPassed or Unknown.
type Payload interface {
	payload()
}

type ModuleCompleted struct {
	UserID          string  `json:"userId" validate:"required"`
	ModuleID        string  `json:"moduleId" validate:"required"`
	CourseID        string  `json:"courseId"`
	EnrollmentID    string  `json:"enrollmentId"`
	ProgressPercent float64 `json:"progressPercent"`
	// CompletedCourse is set by older producers that do not send XpEarned.
	CompletedCourse bool   `json:"completedCourse"`
	XpEarned        *int64 `json:"xpEarned" validate:"omitempty,gte=0"`
}

type CourseCompleted struct {
	UserID        string  `json:"userId" validate:"required"`
	CourseID      string  `json:"courseId" validate:"required"`
	EnrollmentID  string  `json:"enrollmentId"`
	TotalProgress float64 `json:"totalProgress"`
	XpEarned      *int64  `json:"xpEarned" validate:"omitempty,gte=0"`
}

type AssessmentPassed struct {
	UserID       string  `json:"userId" validate:"required"`
	AssessmentID string  `json:"assessmentId" validate:"required"`
	CourseID     string  `json:"courseId"`
	Score        float64 `json:"score"`
	XpEarned     *int64  `json:"xpEarned" validate:"omitempty,gte=0"`
}

// Unknown carries events of a type this service does not handle.
type Unknown struct {
	Raw json.RawMessage
}

func (ModuleCompleted) payload()  {}
func (CourseCompleted) payload()  {}
func (AssessmentPassed) payload() {}
func (Unknown) payload()          {}

// Event is a decoded envelope with its typed payload.
type Event struct {
	Envelope DomainEvent
	Body     Payload
}

// Decode parses a message body. Any failure wraps ErrMalformedEvent; an
// unrecognised type is not a failure and yields an Unknown body.
func Decode(body []byte) (Event, error) {
	var env DomainEvent
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.EventID == "" || env.Type == "" {
		return Event{}, fmt.Errorf("%w: eventId and type are required", ErrMalformedEvent)
	}

	var (
		p   Payload
		err error
	)
	switch env.Type {
	case TypeModuleCompleted:
		p, err = decodePayload[ModuleCompleted](env.Payload)
	case TypeCourseCompleted:
		p, err = decodePayload[CourseCompleted](env.Payload)
	case TypeAssessmentPassed:
		p, err = decodePayload[AssessmentPassed](env.Payload)
	default:
		p = Unknown{Raw: env.Payload}
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Type, err)
	}

	return Event{Envelope: env, Body: p}, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("payload is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if err := validate.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}
