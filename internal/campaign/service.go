// Package campaign implements campaign lifecycle management and the
// dispatch orchestrator that fans a campaign out to its resolved
// recipients.
package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/personalize"
	"github.com/pulsecrm/engage/internal/queue"
)

// Repository is the campaign persistence contract.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context) ([]domain.Campaign, error)
	Create(ctx context.Context, c *domain.Campaign) error
	Update(ctx context.Context, c *domain.Campaign) error
}

// LogRepository persists per-recipient communication logs.
type LogRepository interface {
	Create(ctx context.Context, l *domain.CommunicationLog) error
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.CommunicationLog, error)
}

// RecipientResolver resolves a segment ID into its current customers.
// Satisfied by the segmentation service.
type RecipientResolver interface {
	Resolve(ctx context.Context, segmentID string) ([]domain.Customer, error)
}

// DispatchResult summarizes one Send call. FailedLogIDs lists logs whose
// delivery job could not be enqueued; they stay PENDING and can be retried
// out of band. FailedCustomerIDs lists recipients for whom no log could be
// created; those have nothing persisted to retry against.
type DispatchResult struct {
	CampaignID        string   `json:"campaign_id"`
	TotalRecipients   int      `json:"total_recipients"`
	Enqueued          int      `json:"enqueued"`
	FailedLogIDs      []string `json:"failed_log_ids,omitempty"`
	FailedCustomerIDs []string `json:"failed_customer_ids,omitempty"`
}

// Service orchestrates campaign dispatch. Campaign stats are written here
// exactly once per send (the initial TotalRecipients); all later counter
// mutations belong to the receipt reconciler.
type Service struct {
	campaigns Repository
	logs      LogRepository
	segments  RecipientResolver
	broker    queue.Broker
	liquid    *personalize.LiquidEngine
	now       func() time.Time
}

// NewService wires the orchestrator.
func NewService(campaigns Repository, logs LogRepository, segments RecipientResolver, broker queue.Broker) *Service {
	return &Service{
		campaigns: campaigns,
		logs:      logs,
		segments:  segments,
		broker:    broker,
		liquid:    personalize.NewLiquidEngine(),
		now:       time.Now,
	}
}

// Get returns one campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// List returns all campaigns.
func (s *Service) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.campaigns.List(ctx)
}

// Logs returns the communication logs recorded for a campaign.
func (s *Service) Logs(ctx context.Context, campaignID string) ([]domain.CommunicationLog, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.logs.ListByCampaign(ctx, campaignID)
}

// Create persists a draft campaign, or a scheduled one when scheduledAt is
// set.
func (s *Service) Create(ctx context.Context, name, message, segmentID string, mode domain.PersonalizationMode, scheduledAt *time.Time) (*domain.Campaign, error) {
	if name == "" {
		return nil, ErrNameMissing
	}
	if message == "" {
		return nil, ErrMessageMissing
	}
	if mode != domain.PersonalizeAuto && mode != domain.PersonalizeSmart {
		return nil, fmt.Errorf("%w: %q", ErrBadPersonalization, mode)
	}
	if _, err := s.segments.Resolve(ctx, segmentID); err != nil {
		return nil, fmt.Errorf("validating segment: %w", err)
	}

	now := s.now()
	c := &domain.Campaign{
		ID:              uuid.New().String(),
		Name:            name,
		Message:         message,
		SegmentID:       segmentID,
		Status:          domain.CampaignDraft,
		Personalization: mode,
		ScheduledAt:     scheduledAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if scheduledAt != nil {
		c.Status = domain.CampaignScheduled
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}
	return c, nil
}

// Cancel moves a draft or scheduled campaign to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return nil, fmt.Errorf("%w: status %s", ErrNotSendable, c.Status)
	}
	c.Status = domain.CampaignCancelled
	c.UpdatedAt = s.now()
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("cancelling campaign: %w", err)
	}
	return c, nil
}

// Send dispatches the campaign to every customer its segment currently
// resolves to. The call is synchronous through enqueue: when it returns,
// every recipient has a PENDING CommunicationLog and (best effort) a job on
// the delivery queue. Actual delivery happens asynchronously.
//
// Enqueue failures do not abort the batch: the affected log stays PENDING,
// the failure is recorded in the result, and the loop continues.
func (s *Service) Send(ctx context.Context, id string) (*DispatchResult, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return nil, fmt.Errorf("%w: status %s", ErrNotSendable, c.Status)
	}
	if c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && c.ScheduledAt.After(s.now()) {
		return nil, fmt.Errorf("%w: scheduled for %s", ErrNotSendable, c.ScheduledAt.Format(time.RFC3339))
	}

	recipients, err := s.segments.Resolve(ctx, c.SegmentID)
	if err != nil {
		return nil, fmt.Errorf("resolving recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	// Mark running and pin the recipient count before any job is enqueued.
	// If this write fails nothing has been dispatched yet.
	now := s.now()
	c.Status = domain.CampaignRunning
	c.StartedAt = &now
	c.UpdatedAt = now
	c.Stats = domain.CampaignStats{TotalRecipients: len(recipients)}
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("marking campaign running: %w", err)
	}

	strategy := s.strategyFor(c)
	result := &DispatchResult{CampaignID: c.ID, TotalRecipients: len(recipients)}

	for i := range recipients {
		cust := &recipients[i]
		snap := cust.Snapshot()
		subject, body := strategy(c.Message, snap)

		l := &domain.CommunicationLog{
			ID:         uuid.New().String(),
			CampaignID: c.ID,
			CustomerID: cust.ID,
			Customer:   snap,
			Subject:    subject,
			Message:    body,
			Status:     domain.LogPending,
			CreatedAt:  s.now(),
		}
		if err := s.logs.Create(ctx, l); err != nil {
			// Nothing was persisted for this recipient, so report the
			// customer rather than a log ID that does not exist.
			log.Printf("[Campaign] failed to create log for customer %s: %v", cust.ID, err)
			result.FailedCustomerIDs = append(result.FailedCustomerIDs, cust.ID)
			continue
		}

		job := domain.DeliveryJob{
			CommunicationLogID: l.ID,
			CampaignID:         c.ID,
			CustomerID:         cust.ID,
			Email:              cust.Email,
			Subject:            subject,
			Message:            body,
			EnqueuedAt:         s.now(),
		}
		payload, err := json.Marshal(job)
		if err == nil {
			err = s.broker.Push(ctx, queue.DeliveryQueue, payload)
		}
		if err != nil {
			// Log stays PENDING; delivery can be retried out of band.
			log.Printf("[Campaign] failed to enqueue job for log %s: %v", l.ID, err)
			result.FailedLogIDs = append(result.FailedLogIDs, l.ID)
			continue
		}
		result.Enqueued++
	}

	failed := len(result.FailedLogIDs) + len(result.FailedCustomerIDs)
	if failed > 0 {
		pf := &PartialBatchFailure{
			CampaignID:        c.ID,
			FailedLogIDs:      result.FailedLogIDs,
			FailedCustomerIDs: result.FailedCustomerIDs,
		}
		log.Printf("[Campaign] %v", pf)
	}
	log.Printf("[Campaign] dispatched %s: %d recipients, %d enqueued, %d failed",
		c.ID, result.TotalRecipients, result.Enqueued, failed)
	return result, nil
}

// strategyFor picks the personalization strategy for the campaign copy.
// Smart mode is an explicit opt-in; otherwise Liquid templates select
// themselves via their tag syntax and everything else goes through merge-tag
// substitution, which leaves unknown tokens verbatim.
func (s *Service) strategyFor(c *domain.Campaign) personalize.Strategy {
	if c.Personalization == domain.PersonalizeSmart {
		return personalize.SmartStrategy(s.now())
	}
	if personalize.UsesLiquid(c.Message) {
		return s.liquid.Strategy()
	}
	return personalize.TemplateStrategy
}
