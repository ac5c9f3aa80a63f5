// Package studio is the service layer of FlowStudio. It owns the lifecycle of
// an automation: its conversation, its versioned blueprint and the events the
// UI streams while the copilot works.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/copilot"
	"github.com/jxucoder/flowstudio/internal/github"
	"github.com/jxucoder/flowstudio/internal/store"
)

var (
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrInvalidStatus   = errors.New("invalid blueprint status")
	ErrNotReady        = errors.New("blueprint is not ready to build")
	ErrHandoffDisabled = errors.New("build handoff is not configured")
	ErrUnknownIssue    = errors.New("issue is not a handoff issue")
)

// IssueTracker opens handoff issues and replies on them. *github.Client
// satisfies it.
type IssueTracker interface {
	CreateIssue(ctx context.Context, opts github.IssueOptions) (string, int, error)
	CreateComment(ctx context.Context, repo string, number int, body string) (string, error)
}

// Turn is the outcome of one Converse call.
type Turn struct {
	Message   *store.Message       `json:"message"`
	Result    *copilot.Result      `json:"result"`
	Blueprint *blueprint.Blueprint `json:"blueprint"`
	Version   int                  `json:"version"`
}

// HandoffResult identifies the issue a blueprint was handed off to.
type HandoffResult struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
}

// Service coordinates the store, the event bus and the copilot.
type Service struct {
	store   *store.Store
	bus     *store.EventBus
	copilot *copilot.Copilot
	issues  IssueTracker
	log     *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Service. issues may be nil, in which case Handoff and
// HandleIssueComment fail with ErrHandoffDisabled.
func New(st *store.Store, bus *store.EventBus, cp *copilot.Copilot, issues IssueTracker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   st,
		bus:     bus,
		copilot: cp,
		issues:  issues,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[string]*sync.Mutex),
	}
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store { return s.store }

// Bus returns the event bus.
func (s *Service) Bus() *store.EventBus { return s.bus }

// HandoffEnabled reports whether Handoff can open issues.
func (s *Service) HandoffEnabled() bool { return s.issues != nil }

// CreateAutomation creates an automation with an empty version-1 blueprint.
func (s *Service) CreateAutomation(_ context.Context, name string) (*store.Automation, error) {
	now := s.now()
	a := &store.Automation{
		ID:        uuid.New().String()[:8],
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAutomation(a, blueprint.New(now)); err != nil {
		return nil, fmt.Errorf("creating automation: %w", err)
	}
	s.log.Info("automation created", zap.String("automation", a.ID), zap.String("name", a.Name))
	return a, nil
}

// Converse runs one copilot turn for an automation. Turns on the same
// automation are serialized. A *copilot.TransportError is returned unchanged
// after the user message has been stored.
func (s *Service) Converse(ctx context.Context, automationID, content string) (*Turn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	lock := s.lockFor(automationID)
	lock.Lock()
	defer lock.Unlock()

	a, err := s.store.GetAutomation(automationID)
	if err != nil {
		return nil, err
	}

	if err := s.store.AddMessage(&store.Message{
		AutomationID: a.ID,
		Role:         blueprint.RoleUser,
		Content:      content,
		CreatedAt:    s.now(),
	}); err != nil {
		return nil, fmt.Errorf("storing user message: %w", err)
	}

	bp, version, err := s.store.GetBlueprint(a.ID)
	if err != nil {
		return nil, fmt.Errorf("loading blueprint: %w", err)
	}
	history, err := s.store.GetMessages(a.ID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	res, err := s.copilot.Run(ctx, copilot.Request{
		Blueprint:      bp,
		Messages:       store.Conversation(history),
		AutomationName: a.Name,
	})
	if err != nil {
		s.log.Warn("copilot turn failed", zap.String("automation", a.ID), zap.Error(err))
		s.emitEvent(a.ID, store.EventError, err.Error())
		return nil, err
	}

	reply := &store.Message{
		AutomationID: a.ID,
		Role:         blueprint.RoleAssistant,
		Content:      res.AssistantDisplayText,
		CreatedAt:    s.now(),
	}
	if err := s.store.AddMessage(reply); err != nil {
		return nil, fmt.Errorf("storing assistant message: %w", err)
	}

	s.emitEvent(a.ID, store.EventPhase, string(res.ConversationPhase))
	for _, step := range res.ThinkingSteps {
		s.emitEvent(a.ID, store.EventThinking, step)
	}

	if res.UpdatesDerived && len(bp.Steps) > 0 {
		// Derived steps only seed an empty graph.
		s.log.Debug("keeping existing steps over derived fallback",
			zap.String("automation", a.ID),
			zap.Int("steps", len(bp.Steps)))
	} else if res.BlueprintUpdates != nil {
		for _, assumption := range res.BlueprintUpdates.Assumptions {
			s.emitEvent(a.ID, store.EventAssumption, assumption)
		}
		bp = blueprint.Apply(bp, res.BlueprintUpdates, s.now())
		version, err = s.store.SaveBlueprint(a.ID, bp)
		if err != nil {
			return nil, fmt.Errorf("saving blueprint: %w", err)
		}
		s.emitEvent(a.ID, store.EventBlueprint, strconv.Itoa(version))
	}

	return &Turn{Message: reply, Result: res, Blueprint: bp, Version: version}, nil
}

// SetStatus moves the blueprint to a new lifecycle status, saved as a new
// version.
func (s *Service) SetStatus(_ context.Context, automationID string, status blueprint.Status) (*blueprint.Blueprint, int, error) {
	if !status.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	lock := s.lockFor(automationID)
	lock.Lock()
	defer lock.Unlock()

	bp, _, err := s.store.GetBlueprint(automationID)
	if err != nil {
		return nil, 0, err
	}
	bp.Status = status
	bp.UpdatedAt = s.now()

	version, err := s.store.SaveBlueprint(automationID, bp)
	if err != nil {
		return nil, 0, fmt.Errorf("saving blueprint: %w", err)
	}
	s.emitEvent(automationID, store.EventStatus, string(status))
	return bp, version, nil
}

// Handoff opens a build issue in repo for a blueprint that is ReadyToBuild.
func (s *Service) Handoff(ctx context.Context, automationID, repo string) (*HandoffResult, error) {
	if s.issues == nil {
		return nil, ErrHandoffDisabled
	}

	a, err := s.store.GetAutomation(automationID)
	if err != nil {
		return nil, err
	}
	bp, version, err := s.store.GetBlueprint(automationID)
	if err != nil {
		return nil, err
	}
	if bp.Status != blueprint.StatusReadyToBuild {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, bp.Status)
	}

	name := a.Name
	if name == "" {
		name = "Untitled automation"
	}
	url, number, err := s.issues.CreateIssue(ctx, github.IssueOptions{
		Repo:   repo,
		Title:  github.IssueTitle(name),
		Body:   github.IssueBody(a.ID, name, version, bp),
		Labels: []string{"flowstudio"},
	})
	if err != nil {
		s.emitEvent(a.ID, store.EventError, err.Error())
		return nil, err
	}

	if err := s.store.AddHandoff(&store.Handoff{
		AutomationID: a.ID,
		Repo:         repo,
		IssueNumber:  number,
		URL:          url,
		Version:      version,
		CreatedAt:    s.now(),
	}); err != nil {
		// The issue exists; only comment routing is lost.
		s.log.Error("recording handoff", zap.String("automation", a.ID), zap.Error(err))
	}

	s.log.Info("blueprint handed off",
		zap.String("automation", a.ID),
		zap.String("repo", repo),
		zap.Int("issue", number))
	s.emitEvent(a.ID, store.EventHandoff, url)
	return &HandoffResult{URL: url, Number: number}, nil
}

// HandleIssueComment feeds a comment left on a handoff issue into the
// automation's conversation and posts the copilot's reply back on the issue.
func (s *Service) HandleIssueComment(ctx context.Context, ev *github.CommentEvent) (*Turn, error) {
	if s.issues == nil {
		return nil, ErrHandoffDisabled
	}

	h, err := s.store.GetHandoffByIssue(ev.Repo, ev.IssueNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s#%d", ErrUnknownIssue, ev.Repo, ev.IssueNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up handoff: %w", err)
	}

	s.log.Info("issue comment received",
		zap.String("automation", h.AutomationID),
		zap.String("repo", ev.Repo),
		zap.Int("issue", ev.IssueNumber),
		zap.String("user", ev.User))

	turn, err := s.Converse(ctx, h.AutomationID, ev.Body)
	if err != nil {
		return nil, err
	}

	body := turn.Message.Content + "\n\n" + github.ReplyMarker
	if _, err := s.issues.CreateComment(ctx, ev.Repo, ev.IssueNumber, body); err != nil {
		s.emitEvent(h.AutomationID, store.EventError, err.Error())
		return turn, fmt.Errorf("replying on issue: %w", err)
	}
	return turn, nil
}

func (s *Service) lockFor(automationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[automationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[automationID] = l
	}
	return l
}

func (s *Service) emitEvent(automationID string, eventType store.EventType, data string) {
	event := &store.Event{
		AutomationID: automationID,
		Type:         eventType,
		Data:         data,
		CreatedAt:    s.now(),
	}
	if err := s.store.AddEvent(event); err != nil {
		s.log.Error("storing event", zap.String("automation", automationID), zap.Error(err))
	}
	s.bus.Publish(event)
}
