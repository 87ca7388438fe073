package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-crm/internal/config"
	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/scanner"
	"github.com/ignite/outreach-crm/internal/scheduler"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = "memory"
	cfg.Search.Provider = "google_news"
	cfg.Generator.APIKey = "sk-test"
	cfg.Mail.SMTPHost = "smtp.acme.test"
	cfg.Mail.FromEmail = "sales@acme.test"
	return cfg
}

func TestNew_RegistersAllJobs(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Brain)
	assert.NotNil(t, a.Mailer)
	assert.Equal(t, "local", a.Locks.Backend())
	assert.Equal(t, []string{
		scheduler.JobScanEvents,
		scheduler.JobProcessTriggers,
		scheduler.JobProcessLeftovers,
		scheduler.JobSendPending,
	}, a.Scheduler.Jobs())
}

func TestNew_DegradesWithoutProviders(t *testing.T) {
	cfg := memoryConfig()
	cfg.Generator.APIKey = ""
	cfg.Mail.Transport = "none"
	cfg.Search.Provider = "newsapi"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Brain)
	assert.Nil(t, a.Mailer)
	assert.Equal(t, []string{scheduler.JobScanEvents}, a.Scheduler.Jobs())
}

func TestNew_ConfigErrors(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Driver = "mysql"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown database driver")

	cfg = memoryConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.URL = ""
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "database.url")

	cfg = memoryConfig()
	cfg.Mail.Transport = "pigeon"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown mail transport")

	cfg = memoryConfig()
	cfg.Scheduler.SendPending = "every hour"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "register send_pending")
}

func TestScanEventsJob_BirthdaysOnly(t *testing.T) {
	cfg := memoryConfig()
	cfg.Search.Provider = "newsapi" // no key: news search disabled
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	_, err = a.Gateway.Accounts.Create(ctx, &domain.Account{Name: "Acme"})
	require.NoError(t, err)

	res, err := a.Scheduler.RunJobManually(ctx, scheduler.JobScanEvents)
	require.NoError(t, err)
	rep, ok := res.(scanner.FullScanReport)
	require.True(t, ok)
	assert.Zero(t, rep.Accounts.Queries)
	assert.Empty(t, rep.Errors)

	st := a.Scheduler.Status()[scheduler.JobScanEvents]
	assert.EqualValues(t, 1, st.Runs)
	assert.Empty(t, st.LastError)
}
