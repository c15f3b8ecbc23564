package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suchitj2702/algo-irl/internal/common/mq"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	apperrors "github.com/suchitj2702/algo-irl/pkg/errors"
)

// CompletionEvent is published when a submission reaches a terminal state.
type CompletionEvent struct {
	SubmissionID    string                 `json:"submission_id"`
	Status          model.SubmissionStatus `json:"status"`
	Passed          bool                   `json:"passed"`
	TestCasesPassed int                    `json:"test_cases_passed"`
	TestCasesTotal  int                    `json:"test_cases_total"`
	CreatedAt       int64                  `json:"created_at"`
}

// CompletionPublisher publishes terminal-state events for async consumers.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, submission *model.Submission) error
}

// MQCompletionPublisher publishes completion events to a message queue.
type MQCompletionPublisher struct {
	queue mq.Producer
	topic string
}

// NewMQCompletionPublisher creates a completion publisher.
func NewMQCompletionPublisher(queue mq.Producer, topic string) *MQCompletionPublisher {
	return &MQCompletionPublisher{queue: queue, topic: topic}
}

// PublishCompletion publishes one terminal-state event.
func (p *MQCompletionPublisher) PublishCompletion(ctx context.Context, submission *model.Submission) error {
	if p == nil || p.queue == nil {
		return apperrors.New(apperrors.ServiceUnavailable).WithMessage("completion publisher is not configured")
	}
	if p.topic == "" {
		return apperrors.New(apperrors.InvalidParams).WithMessage("completion topic is required")
	}
	if submission == nil || submission.ID == "" {
		return apperrors.ValidationError("submission_id", "required")
	}

	event := CompletionEvent{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		CreatedAt:    time.Now().Unix(),
	}
	if submission.Results != nil {
		event.Passed = submission.Results.Passed
		event.TestCasesPassed = submission.Results.TestCasesPassed
		event.TestCasesTotal = submission.Results.TestCasesTotal
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal completion event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = submission.ID
	message.SetHeader("x-event-type", "execution.completed")
	message.SetHeader("x-submission-status", string(submission.Status))
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return apperrors.Wrapf(err, apperrors.ServiceUnavailable, "publish completion event failed")
	}
	return nil
}
