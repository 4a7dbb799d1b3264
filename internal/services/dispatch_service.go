package services

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"schoolcomms/internal/channels"
	"schoolcomms/internal/config"
	"schoolcomms/internal/models"
	"schoolcomms/internal/templates"
	"schoolcomms/pkg/logger"
)

// DeliveryStore is the persistence surface the dispatcher needs from
// the delivery repository.
type DeliveryStore interface {
	Create(ctx context.Context, record *models.DeliveryRecord) error
	Update(ctx context.Context, record *models.DeliveryRecord) error
}

// TemplateStore loads tenant-scoped message templates.
type TemplateStore interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.MessageTemplate, error)
}

// RecipientDirectory resolves recipient details for tag substitution.
type RecipientDirectory interface {
	Resolve(ctx context.Context, tenantID, recipientID string) (*models.RecipientInfo, error)
}

// WhatsAppSenderSource yields the tenant's live WhatsApp sender.
type WhatsAppSenderSource interface {
	Sender(tenantID string) (channels.UnitSender, error)
}

// EmailSenderSource yields a sender bound to the tenant's SMTP config.
type EmailSenderSource interface {
	Sender(ctx context.Context, tenantID, subject string) (channels.UnitSender, error)
}

// DispatchRecipient is one addressee of a bulk send. Contact is the raw
// phone number or email address as submitted; ID optionally points into
// the recipient directory for tag substitution.
type DispatchRecipient struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Contact string `json:"contact" binding:"required"`
}

// RecipientOutcome is the per-recipient result of a bulk send.
type RecipientOutcome struct {
	RecordID uuid.UUID `json:"record_id"`
	Name     string    `json:"name"`
	Contact  string    `json:"contact"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
}

// BulkResult is the aggregate accounting of a bulk send. Sent plus
// Failed always equals Total, including on early cancellation.
type BulkResult struct {
	Total   int                `json:"total"`
	Sent    int                `json:"sent"`
	Failed  int                `json:"failed"`
	Details []RecipientOutcome `json:"details"`
}

// DispatchRequest is one bulk send order.
type DispatchRequest struct {
	Channel    models.Channel
	Recipients []DispatchRecipient
	Body       string
	Subject    string
	TemplateID *uuid.UUID
}

// DispatchService runs bulk sends: one delivery record per recipient,
// per-recipient template rendering, paced sequential sending and strict
// sent/failed accounting.
type DispatchService struct {
	cfg        *config.Config
	deliveries DeliveryStore
	tmpls      TemplateStore
	directory  RecipientDirectory
	whatsapp   WhatsAppSenderSource
	email      EmailSenderSource
	normalizer PhoneNormalizer
	log        *logger.Logger
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(cfg *config.Config, deliveries DeliveryStore, tmpls TemplateStore, directory RecipientDirectory, whatsapp WhatsAppSenderSource, email EmailSenderSource, log *logger.Logger) *DispatchService {
	return &DispatchService{
		cfg:        cfg,
		deliveries: deliveries,
		tmpls:      tmpls,
		directory:  directory,
		whatsapp:   whatsapp,
		email:      email,
		normalizer: PhoneNormalizer{
			CountryCode: cfg.WhatsApp.CountryCode,
			TrunkPrefix: cfg.WhatsApp.TrunkPrefix,
		},
		log: log,
	}
}

// Dispatch runs one bulk send synchronously and returns the aggregate
// accounting. The sender is resolved once up front, so an unusable
// channel fails the whole batch before any record is written. After
// that point every recipient gets a delivery record whatever happens.
func (s *DispatchService) Dispatch(ctx context.Context, tenantID string, req DispatchRequest) (*BulkResult, error) {
	if len(req.Recipients) == 0 {
		return nil, newError(KindRecipient, "recipient list is empty")
	}
	if len(req.Recipients) > s.cfg.Dispatch.MaxRecipients {
		return nil, newError(KindRecipient, "recipient list exceeds maximum of %d", s.cfg.Dispatch.MaxRecipients)
	}

	content := req.Body
	if req.TemplateID != nil {
		tmpl, err := s.tmpls.GetByID(ctx, tenantID, *req.TemplateID)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, newError(KindConfiguration, "template %s not found", req.TemplateID)
		}
		content = tmpl.Content
	}
	if content == "" {
		return nil, newError(KindRecipient, "message body is empty")
	}

	sender, pacing, err := s.resolveSender(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if pacing > 0 {
		limiter = rate.NewLimiter(rate.Every(pacing), 1)
	}

	result := &BulkResult{
		Total:   len(req.Recipients),
		Details: make([]RecipientOutcome, 0, len(req.Recipients)),
	}

	s.log.Info("Bulk dispatch started for tenant %s: %d recipient(s) via %s", tenantID, result.Total, req.Channel)

	canceled := false
	for _, rcpt := range req.Recipients {
		if !canceled {
			if err := limiter.Wait(ctx); err != nil {
				canceled = true
			}
		}

		outcome := s.sendOne(ctx, tenantID, req, rcpt, content, sender, canceled)
		if outcome.Success {
			result.Sent++
		} else {
			result.Failed++
		}
		result.Details = append(result.Details, outcome)

		if !canceled && ctx.Err() != nil {
			canceled = true
		}
	}

	s.log.Info("Bulk dispatch finished for tenant %s: %d sent, %d failed", tenantID, result.Sent, result.Failed)
	return result, nil
}

// resolveSender binds the batch to its channel adapter and pacing.
func (s *DispatchService) resolveSender(ctx context.Context, tenantID string, req DispatchRequest) (channels.UnitSender, time.Duration, error) {
	switch req.Channel {
	case models.ChannelWhatsApp:
		sender, err := s.whatsapp.Sender(tenantID)
		if err != nil {
			return nil, 0, err
		}
		return sender, s.cfg.WhatsApp.SendPacing, nil
	case models.ChannelEmail:
		sender, err := s.email.Sender(ctx, tenantID, req.Subject)
		if err != nil {
			return nil, 0, err
		}
		return sender, s.cfg.SMTP.SendPacing, nil
	default:
		return nil, 0, newError(KindRecipient, "unknown channel: %s", req.Channel)
	}
}

// sendOne processes a single recipient and always leaves a delivery
// record behind. Log writes are detached from ctx so a canceled batch
// still gets its accounting persisted.
func (s *DispatchService) sendOne(ctx context.Context, tenantID string, req DispatchRequest, rcpt DispatchRecipient, content string, sender channels.UnitSender, canceled bool) RecipientOutcome {
	logCtx := context.WithoutCancel(ctx)

	var info *models.RecipientInfo
	if rcpt.ID != "" {
		resolved, err := s.directory.Resolve(logCtx, tenantID, rcpt.ID)
		if err != nil {
			s.log.Warn("Failed to resolve recipient %s for tenant %s: %v", rcpt.ID, tenantID, err)
		} else {
			info = resolved
		}
	}
	body := templates.Render(content, info)

	record := &models.DeliveryRecord{
		TenantID:      tenantID,
		RecipientName: rcpt.Name,
		Content:       body,
		Channel:       req.Channel,
		TemplateID:    req.TemplateID,
		Status:        models.DeliveryPending,
	}
	if rcpt.ID != "" {
		record.RecipientID = &rcpt.ID
	}

	outcome := RecipientOutcome{Name: rcpt.Name, Contact: rcpt.Contact}

	fail := func(reason string) RecipientOutcome {
		record.MarkFailed(reason)
		if err := s.deliveries.Update(logCtx, record); err != nil {
			s.log.Error("Failed to update delivery record %s: %v", record.ID, err)
		}
		outcome.RecordID = record.ID
		outcome.Error = reason
		return outcome
	}

	destination, destErr := s.prepareDestination(req.Channel, rcpt.Contact, record)

	if err := s.deliveries.Create(logCtx, record); err != nil {
		s.log.Error("Failed to create delivery record for tenant %s: %v", tenantID, err)
		outcome.Error = "delivery record could not be written"
		return outcome
	}
	outcome.RecordID = record.ID

	if canceled {
		return fail("batch canceled")
	}
	if destErr != nil {
		return fail(destErr.Error())
	}

	res := sender.Send(ctx, destination, body)
	if !res.Success {
		return fail(res.Error)
	}

	record.MarkSent()
	if res.MessageID != "" {
		record.ProviderMessageID = &res.MessageID
	}
	if err := s.deliveries.Update(logCtx, record); err != nil {
		s.log.Error("Failed to update delivery record %s: %v", record.ID, err)
	}
	outcome.Success = true
	return outcome
}

// prepareDestination validates and normalizes the contact for the
// channel and stamps it onto the record.
func (s *DispatchService) prepareDestination(channel models.Channel, contact string, record *models.DeliveryRecord) (string, error) {
	switch channel {
	case models.ChannelWhatsApp:
		phone, err := s.normalizer.Normalize(contact)
		if err != nil {
			return "", err
		}
		record.Phone = &phone
		return phone, nil
	case models.ChannelEmail:
		addr, err := mail.ParseAddress(contact)
		if err != nil {
			return "", newError(KindRecipient, "invalid email address %q", contact)
		}
		record.Email = &addr.Address
		return addr.Address, nil
	default:
		return "", newError(KindRecipient, "unknown channel: %s", channel)
	}
}
