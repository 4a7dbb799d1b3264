package services

import (
	"context"
	"sync"
	"testing"

	"schoolcomms/internal/channels"
	"schoolcomms/internal/config"
	"schoolcomms/internal/models"
	"schoolcomms/pkg/logger"
)

type fakeEmailSettingStore struct {
	mu       sync.Mutex
	settings map[string]*models.EmailSetting
}

func newFakeEmailSettingStore() *fakeEmailSettingStore {
	return &fakeEmailSettingStore{settings: make(map[string]*models.EmailSetting)}
}

func (s *fakeEmailSettingStore) GetByTenant(ctx context.Context, tenantID string) (*models.EmailSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if setting, ok := s.settings[tenantID]; ok {
		copied := *setting
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeEmailSettingStore) Save(ctx context.Context, setting *models.EmailSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.settings[setting.TenantID]; ok && setting.Password == "" {
		setting.Password = existing.Password
	}
	copied := *setting
	s.settings[setting.TenantID] = &copied
	return nil
}

func (s *fakeEmailSettingStore) Update(ctx context.Context, setting *models.EmailSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *setting
	s.settings[setting.TenantID] = &copied
	return nil
}

func (s *fakeEmailSettingStore) stored(tenantID string) *models.EmailSetting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[tenantID]
}

func newTestEmailService() (*EmailService, *fakeEmailSettingStore) {
	store := newFakeEmailSettingStore()
	cfg := &config.Config{}
	svc := NewEmailService(cfg, store, logger.New("error"))
	return svc, store
}

func validEmailInput() EmailConfigInput {
	return EmailConfigInput{
		Host:        "smtp.example.com",
		Port:        587,
		Username:    "school",
		Password:    "secret",
		FromAddress: "noreply@school.example.com",
		FromName:    "City Grammar School",
	}
}

func TestSaveConfigStoresUnverified(t *testing.T) {
	svc, store := newTestEmailService()

	setting, err := svc.SaveConfig(context.Background(), "school-1", validEmailInput())
	if err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if setting.Verified {
		t.Error("a fresh configuration must start unverified")
	}

	stored := store.stored("school-1")
	if stored == nil {
		t.Fatal("configuration was not persisted")
	}
	if stored.Host != "smtp.example.com" || stored.Port != 587 {
		t.Errorf("stored %s:%d", stored.Host, stored.Port)
	}
}

func TestSaveConfigValidation(t *testing.T) {
	svc, store := newTestEmailService()

	bad := validEmailInput()
	bad.Host = ""
	if _, err := svc.SaveConfig(context.Background(), "school-1", bad); KindOf(err) != KindConfiguration {
		t.Errorf("missing host: kind = %q", KindOf(err))
	}

	bad = validEmailInput()
	bad.Port = 70000
	if _, err := svc.SaveConfig(context.Background(), "school-1", bad); KindOf(err) != KindConfiguration {
		t.Errorf("bad port: kind = %q", KindOf(err))
	}

	bad = validEmailInput()
	bad.FromAddress = "not-an-address"
	if _, err := svc.SaveConfig(context.Background(), "school-1", bad); KindOf(err) != KindConfiguration {
		t.Errorf("bad from address: kind = %q", KindOf(err))
	}

	if store.stored("school-1") != nil {
		t.Error("invalid input must not be persisted")
	}
}

func TestSaveConfigKeepsPasswordOnUpdate(t *testing.T) {
	svc, store := newTestEmailService()

	if _, err := svc.SaveConfig(context.Background(), "school-1", validEmailInput()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	update := validEmailInput()
	update.Password = ""
	update.FromName = "Renamed School"
	if _, err := svc.SaveConfig(context.Background(), "school-1", update); err != nil {
		t.Fatalf("SaveConfig update: %v", err)
	}

	stored := store.stored("school-1")
	if stored.Password != "secret" {
		t.Errorf("Password = %q, blank update must keep the stored one", stored.Password)
	}
	if stored.FromName != "Renamed School" {
		t.Errorf("FromName = %q, other fields must update", stored.FromName)
	}
}

func TestTestConfigRecordsOutcome(t *testing.T) {
	svc, store := newTestEmailService()
	if _, err := svc.SaveConfig(context.Background(), "school-1", validEmailInput()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	svc.verify = func(ctx context.Context, setting *models.EmailSetting, to string) channels.SendResult {
		return channels.SendResult{Success: true}
	}

	result, err := svc.TestConfig(context.Background(), "school-1", "")
	if err != nil {
		t.Fatalf("TestConfig: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	stored := store.stored("school-1")
	if !stored.Verified || stored.LastVerified == nil {
		t.Error("successful test must set the verified flag and timestamp")
	}

	svc.verify = func(ctx context.Context, setting *models.EmailSetting, to string) channels.SendResult {
		return channels.SendResult{Error: "535 authentication failed"}
	}

	result, err = svc.TestConfig(context.Background(), "school-1", "")
	if err != nil {
		t.Fatalf("TestConfig should not error on SMTP failure: %v", err)
	}
	if result.Success {
		t.Error("result should report the failure")
	}
	if result.Error != "535 authentication failed" {
		t.Errorf("Error = %q", result.Error)
	}
	if store.stored("school-1").Verified {
		t.Error("failed test must clear the verified flag")
	}
}

func TestTestConfigWithoutConfiguration(t *testing.T) {
	svc, _ := newTestEmailService()

	_, err := svc.TestConfig(context.Background(), "school-1", "")
	if KindOf(err) != KindConfiguration {
		t.Errorf("kind = %q, want %q", KindOf(err), KindConfiguration)
	}
}

func TestEmailSenderRequiresConfiguration(t *testing.T) {
	svc, _ := newTestEmailService()

	_, err := svc.Sender(context.Background(), "school-1", "Fee reminder")
	if KindOf(err) != KindConfiguration {
		t.Errorf("kind = %q, want %q", KindOf(err), KindConfiguration)
	}

	if _, err := svc.SaveConfig(context.Background(), "school-1", validEmailInput()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if _, err := svc.Sender(context.Background(), "school-1", "Fee reminder"); err != nil {
		t.Errorf("Sender with configuration: %v", err)
	}
}
