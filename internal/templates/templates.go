// Package templates manages reusable event templates.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/recurrence"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/store"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/timeparse"
)

var (
	// ErrInvalidAction is returned for an action outside the known set.
	ErrInvalidAction = errors.New("invalid template action")
	// ErrTemplateExists is returned when a user already has a template with that name.
	ErrTemplateExists = errors.New("template already exists")
	// ErrTemplateNotFound is returned when the named template does not exist.
	ErrTemplateNotFound = errors.New("template not found")
)

// DefaultDuration applies to templates created without a duration.
const DefaultDuration = time.Hour

// Action is one of the operations on templates.
type Action int

const (
	ActionList Action = iota + 1
	ActionCreate
	ActionUse
	ActionDelete
)

var actionNames = map[Action]string{
	ActionList:   "list",
	ActionCreate: "create",
	ActionUse:    "use",
	ActionDelete: "delete",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction maps a case-insensitive name onto an Action.
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, n := range actionNames {
		if n == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Repository persists templates.
type Repository interface {
	CreateTemplate(ctx context.Context, t *models.EventTemplate) error
	GetTemplate(ctx context.Context, userID, name string) (*models.EventTemplate, error)
	ListTemplates(ctx context.Context, userID string) ([]models.EventTemplate, error)
	DeleteTemplate(ctx context.Context, userID, name string) error
}

// Request carries the inputs of one action. Only the fields the action uses are read.
type Request struct {
	Action   Action
	UserID   string
	Name     string
	Template models.EventTemplate // ActionCreate
	When     string               // ActionUse, a time expression
	Timezone string               // ActionUse
}

// Result is the outcome of an action.
type Result struct {
	Action    Action
	Templates []models.EventTemplate // ActionList
	Template  *models.EventTemplate  // ActionCreate, ActionUse
	Draft     *models.EventDraft     // ActionUse
}

// Service executes template actions.
type Service struct {
	repo   Repository
	parser *timeparse.Parser
}

// NewService creates a Service.
func NewService(repo Repository, parser *timeparse.Parser) *Service {
	return &Service{repo: repo, parser: parser}
}

// Handle runs req.Action.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" {
		return Result{}, errors.New("user id is required")
	}
	switch req.Action {
	case ActionList:
		ts, err := s.repo.ListTemplates(ctx, req.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to list templates: %w", err)
		}
		return Result{Action: ActionList, Templates: ts}, nil
	case ActionCreate:
		t, err := s.create(ctx, req)
		if err != nil {
			return Result{}, err
		}
		return Result{Action: ActionCreate, Template: t}, nil
	case ActionUse:
		t, draft, err := s.use(ctx, req)
		if err != nil {
			return Result{}, err
		}
		return Result{Action: ActionUse, Template: t, Draft: draft}, nil
	case ActionDelete:
		if err := s.repo.DeleteTemplate(ctx, req.UserID, req.Name); err != nil {
			return Result{}, notFound(err, req.Name)
		}
		return Result{Action: ActionDelete}, nil
	default:
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidAction, req.Action)
	}
}

func (s *Service) create(ctx context.Context, req Request) (*models.EventTemplate, error) {
	t := req.Template
	t.UserID = req.UserID
	if req.Name != "" {
		t.Name = req.Name
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, errors.New("template name is required")
	}
	if t.Title == "" {
		t.Title = t.Name
	}
	if t.Duration < 0 {
		return nil, fmt.Errorf("template duration must not be negative, got %s", t.Duration)
	}
	if t.Duration == 0 {
		t.Duration = DefaultDuration
	}
	if t.ReminderMinutes < 0 {
		return nil, fmt.Errorf("reminder minutes must not be negative, got %d", t.ReminderMinutes)
	}
	if t.RecurrenceRule != "" {
		d, err := recurrence.Decode(t.RecurrenceRule)
		if err != nil {
			return nil, err
		}
		t.RecurrenceRule = d.String()
	}

	if err := s.repo.CreateTemplate(ctx, &t); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %q", ErrTemplateExists, t.Name)
		}
		return nil, fmt.Errorf("failed to save template: %w", err)
	}
	return &t, nil
}

func (s *Service) use(ctx context.Context, req Request) (*models.EventTemplate, *models.EventDraft, error) {
	t, err := s.repo.GetTemplate(ctx, req.UserID, req.Name)
	if err != nil {
		return nil, nil, notFound(err, req.Name)
	}
	rng, err := s.parser.ParseRange(req.When, req.Timezone)
	if err != nil {
		return nil, nil, err
	}

	draft := &models.EventDraft{
		Title:       t.Title,
		Description: t.Description,
		Location:    t.Location,
		Range:       models.TimeRange{Start: rng.Start, End: rng.Start.Add(t.Duration)},
		Attendees:   append([]string(nil), t.Attendees...),
	}
	if t.RecurrenceRule != "" {
		d, err := recurrence.Decode(t.RecurrenceRule)
		if err != nil {
			return nil, nil, err
		}
		draft.Recurrence = []string{d.RRule()}
	}
	return t, draft, nil
}

func notFound(err error, name string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return err
}
