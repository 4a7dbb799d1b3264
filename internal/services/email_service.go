package services

import (
	"context"
	"net/mail"

	"schoolcomms/internal/channels"
	"schoolcomms/internal/config"
	"schoolcomms/internal/models"
	"schoolcomms/pkg/logger"
)

// EmailSettingStore is the persistence surface the email service needs
// from the settings repository.
type EmailSettingStore interface {
	GetByTenant(ctx context.Context, tenantID string) (*models.EmailSetting, error)
	Save(ctx context.Context, setting *models.EmailSetting) error
	Update(ctx context.Context, setting *models.EmailSetting) error
}

// EmailConfigInput is the tenant-submitted SMTP configuration. Password
// is write-only: empty on update keeps the stored one.
type EmailConfigInput struct {
	Host        string `json:"host" binding:"required"`
	Port        int    `json:"port" binding:"required"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromAddress string `json:"from_address" binding:"required"`
	FromName    string `json:"from_name"`
}

// EmailTestResult is the structured outcome of a test connection. SMTP
// failures land in Error rather than failing the request.
type EmailTestResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// EmailService manages per-tenant SMTP configuration and hands out
// senders bound to it.
type EmailService struct {
	cfg  *config.Config
	repo EmailSettingStore
	log  *logger.Logger

	// verify is swapped out in tests to avoid real SMTP dials.
	verify func(ctx context.Context, setting *models.EmailSetting, to string) channels.SendResult
}

// NewEmailService creates a new email service
func NewEmailService(cfg *config.Config, repo EmailSettingStore, log *logger.Logger) *EmailService {
	s := &EmailService{
		cfg:  cfg,
		repo: repo,
		log:  log,
	}
	s.verify = s.liveVerify
	return s
}

func (s *EmailService) liveVerify(ctx context.Context, setting *models.EmailSetting, to string) channels.SendResult {
	sender := channels.NewEmailSender(setting, "SMTP configuration test", s.cfg.SMTP.DialTimeout)
	if to != "" {
		return sender.SendTest(ctx, to)
	}
	if err := sender.Verify(ctx); err != nil {
		return channels.SendResult{Error: err.Error()}
	}
	return channels.SendResult{Success: true}
}

// SaveConfig validates and stores the tenant's SMTP settings. Any
// change drops the verified flag until the next successful test.
func (s *EmailService) SaveConfig(ctx context.Context, tenantID string, input EmailConfigInput) (*models.EmailSetting, error) {
	if input.Host == "" {
		return nil, newError(KindConfiguration, "smtp host is required")
	}
	if input.Port < 1 || input.Port > 65535 {
		return nil, newError(KindConfiguration, "smtp port %d is out of range", input.Port)
	}
	if _, err := mail.ParseAddress(input.FromAddress); err != nil {
		return nil, newError(KindConfiguration, "invalid from address %q", input.FromAddress)
	}

	setting := &models.EmailSetting{
		TenantID:    tenantID,
		Host:        input.Host,
		Port:        input.Port,
		Username:    input.Username,
		Password:    input.Password,
		FromAddress: input.FromAddress,
		FromName:    input.FromName,
	}
	setting.SetUnverified()

	if err := s.repo.Save(ctx, setting); err != nil {
		return nil, err
	}

	s.log.Info("SMTP configuration saved for tenant %s (%s:%d)", tenantID, input.Host, input.Port)
	return setting, nil
}

// GetConfig returns the tenant's stored settings, or nil when email has
// not been configured. The password never leaves the service.
func (s *EmailService) GetConfig(ctx context.Context, tenantID string) (*models.EmailSetting, error) {
	return s.repo.GetByTenant(ctx, tenantID)
}

// TestConfig dials the tenant's SMTP server, optionally sending a test
// message, and records the outcome on the settings row. SMTP failures
// come back as a structured result, not an error.
func (s *EmailService) TestConfig(ctx context.Context, tenantID, to string) (*EmailTestResult, error) {
	setting, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, newError(KindConfiguration, "email is not configured for this tenant")
	}

	res := s.verify(ctx, setting, to)
	if res.Success {
		setting.SetVerified()
	} else {
		setting.SetUnverified()
		s.log.Warn("SMTP test failed for tenant %s: %s", tenantID, res.Error)
	}
	if err := s.repo.Update(ctx, setting); err != nil {
		return nil, err
	}

	return &EmailTestResult{Success: res.Success, Error: res.Error}, nil
}

// Sender returns a sender bound to the tenant's SMTP configuration for
// bulk dispatch. An unconfigured tenant fails here, before any delivery
// record is written.
func (s *EmailService) Sender(ctx context.Context, tenantID, subject string) (channels.UnitSender, error) {
	setting, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, newError(KindConfiguration, "email is not configured for this tenant")
	}
	if subject == "" {
		subject = setting.FromName
	}

	return channels.NewEmailSender(setting, subject, s.cfg.SMTP.DialTimeout), nil
}
