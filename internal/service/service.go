// Package service implements the agent: the planning loop that turns a user
// message into tool calls, the confirmation gate in front of writes, and the
// executor that runs approved plans.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/adapter/llm"
	"github.com/wrapshot/agent/internal/audit"
	"github.com/wrapshot/agent/internal/confirmation"
	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/policy"
	"github.com/wrapshot/agent/internal/tools"
)

const (
	DefaultMaxIterations = 8
	DefaultHistoryLimit  = 30
)

// MessageStore persists the conversation of each project.
type MessageStore interface {
	CreateMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, projectID string, limit int) ([]domain.Message, bool, error)
}

// Publisher is notified of every message after it is stored.
type Publisher interface {
	Publish(msg *domain.Message)
}

// Config tunes the agent loop.
type Config struct {
	Model           string
	MaxIterations   int
	HistoryLimit    int
	ConfirmationTTL time.Duration
}

type Service struct {
	messages      MessageStore
	confirmations confirmation.Store
	registry      *tools.Registry
	llmClient     llm.LLMClient
	policyEngine  policy.Evaluator
	auditWriter   audit.EventWriter
	publisher     Publisher
	config        Config
	logger        *zap.Logger
	now           func() time.Time
}

// New creates the agent service. policyEngine, auditWriter and logger may be nil.
func New(messages MessageStore, confirmations confirmation.Store, registry *tools.Registry, llmClient llm.LLMClient, policyEngine policy.Evaluator, auditWriter audit.EventWriter, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = confirmation.DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditWriter == nil {
		auditWriter = audit.NewLogWriter(logger)
	}
	return &Service{
		messages:      messages,
		confirmations: confirmations,
		registry:      registry,
		llmClient:     llmClient,
		policyEngine:  policyEngine,
		auditWriter:   auditWriter,
		config:        cfg,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher registers a listener for stored messages.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ListMessages returns the latest messages of a project.
func (s *Service) ListMessages(ctx context.Context, projectID string, limit int) (*domain.ListMessagesResponse, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", domain.ErrInvalidRequest)
	}
	messages, hasMore, err := s.messages.ListMessages(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return &domain.ListMessagesResponse{Messages: messages, HasMore: hasMore}, nil
}

// GetConfirmation returns a confirmation owned by projectID.
func (s *Service) GetConfirmation(ctx context.Context, projectID, confirmationID string) (*domain.Confirmation, error) {
	conf, err := s.confirmations.Get(ctx, confirmationID)
	if err != nil {
		return nil, err
	}
	if conf.ProjectID != projectID {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationForbidden, confirmationID)
	}
	if conf.Expired(s.now()) {
		conf.Status = domain.ConfirmationStatusExpired
	}
	return conf, nil
}

// ListTools describes the registered tools.
func (s *Service) ListTools() *domain.ListToolsResponse {
	schemas := s.registry.DescribeAll()
	items := make([]domain.ToolListItem, 0, len(schemas))
	for _, sc := range schemas {
		items = append(items, domain.ToolListItem{
			Name:        sc.Name,
			Description: sc.Description,
			Tier:        sc.Tier,
			Parameters:  sc.Parameters,
		})
	}
	return &domain.ListToolsResponse{Tools: items}
}

func validateContext(tc domain.ToolContext) error {
	if strings.TrimSpace(tc.ProjectID) == "" {
		return fmt.Errorf("%w: project_id is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(tc.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	return nil
}

// saveMessage stores a new message and notifies the publisher.
func (s *Service) saveMessage(ctx context.Context, tc domain.ToolContext, role domain.Role, content string, md *domain.MessageMetadata) (*domain.Message, error) {
	msg := &domain.Message{
		MessageID: "msg_" + uuid.NewString(),
		ProjectID: tc.ProjectID,
		UserID:    tc.UserID,
		Role:      role,
		Content:   content,
		Metadata:  md,
		CreatedAt: s.now(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save %s message: %w", role, err)
	}
	if s.publisher != nil {
		s.publisher.Publish(msg)
	}
	return msg, nil
}
