package worker

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"teymur/broadcast"
	"teymur/models"
	"teymur/scheduler"
	"teymur/utils"
)

type fakeTransport struct {
	err  error
	sent []utils.OutboundMessage
}

func (f *fakeTransport) Send(msg utils.OutboundMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func newTestWorker(t *testing.T, now time.Time) (*DispatchWorker, sqlmock.Sqlmock, *fakeTransport) {
	t.Helper()
	db, mock := newMockDB(t)

	log := logrus.New()
	log.SetOutput(io.Discard)

	resolver := scheduler.NewResolver(scheduler.NewCalendarResolver(nil))
	resolver.Now = func() time.Time { return now }

	transport := &fakeTransport{}
	dw := &DispatchWorker{
		DB:        db,
		Resolver:  resolver,
		Transport: transport,
		Sink:      broadcast.NopSink{},
		Logger:    log.WithField("component", "dispatch"),
		BaseURL:   "https://track.example.com",
		Interval:  3 * time.Minute,
		Now:       func() time.Time { return now },
	}
	return dw, mock, transport
}

func TestClassifyFiring(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tolerance := 3 * time.Minute

	cases := []struct {
		name        string
		scheduledAt time.Time
		want        int
	}{
		{"well before the window", now.Add(10 * time.Minute), fireNotYet},
		{"window leading edge", now.Add(tolerance), fireDue},
		{"exactly on time", now, fireDue},
		{"window trailing edge", now.Add(-tolerance), fireDue},
		{"just past the window", now.Add(-tolerance - time.Second), fireMissed},
		{"hours late", now.Add(-2 * time.Hour), fireMissed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyFiring(now, tc.scheduledAt, tolerance))
		})
	}
}

func TestStopOnReplySkipsContact(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)

	campaign := &models.Campaign{UserID: 7, StopOnReply: true}
	campaign.ID = 42
	step := models.SequenceStep{Index: 0, TemplateID: 3}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	dw.dispatchToContact(campaign, step, &models.Template{}, 9, now, false)

	assert.Empty(t, transport.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateGuardSkipsRepeatFiring(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)

	campaign := &models.Campaign{UserID: 7}
	campaign.ID = 42
	step := models.SequenceStep{Index: 0, TemplateID: 3}

	// A sent ledger row for this unit already exists.
	mock.ExpectQuery(`SELECT count\(\*\) FROM "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	dw.dispatchToContact(campaign, step, &models.Template{}, 9, now, false)

	assert.Empty(t, transport.sent, "a served unit must never send twice")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchPersonalizesTracksAndFinalizes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)

	campaign := &models.Campaign{UserID: 7, SenderName: "Acme Outreach"}
	campaign.ID = 42
	step := models.SequenceStep{Index: 1, TemplateID: 3}
	template := &models.Template{
		Subject:     "Hi {{first_name}}",
		HTMLContent: `<body><p>Hello {{first_name}}</p><a href="https://example.com">Site</a></body>`,
	}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT (.+) FROM "contacts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name"}).
			AddRow(9, "aylin@example.com", "Aylin"))
	mock.ExpectQuery(`INSERT INTO "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectExec(`UPDATE "sends" SET (.+)"sent"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "campaigns" SET "total_sent"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "contacts" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	dw.dispatchToContact(campaign, step, template, 9, now, true)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, "aylin@example.com", msg.To)
	assert.Equal(t, "Hi Aylin", msg.Subject)
	assert.Equal(t, "Acme Outreach", msg.SenderName)
	assert.Contains(t, msg.HTMLBody, "Hello Aylin")

	// The ledger row's tracking id is embedded into the HTML before sending.
	assert.NotEmpty(t, msg.Tracking.CorrelationID)
	assert.Contains(t, msg.HTMLBody, "/tracking/open/"+msg.Tracking.CorrelationID)
	assert.Contains(t, msg.HTMLBody, "/tracking/click/"+msg.Tracking.CorrelationID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransportFailureIsRecordedVerbatim(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)
	transport.err = errors.New("mailbox is full")

	campaign := &models.Campaign{UserID: 7}
	campaign.ID = 42
	step := models.SequenceStep{Index: 0, TemplateID: 3}
	template := &models.Template{Subject: "Hi", HTMLContent: "<p>Hi</p>"}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT (.+) FROM "contacts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(9, "aylin@example.com"))
	mock.ExpectQuery(`INSERT INTO "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectExec(`UPDATE "sends" SET (.+)"failure_reason"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "campaigns" SET "total_failed"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	dw.dispatchToContact(campaign, step, template, 9, now, false)

	require.Len(t, transport.sent, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsendableContactIsSkipped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)

	campaign := &models.Campaign{UserID: 7}
	campaign.ID = 42
	step := models.SequenceStep{Index: 0, TemplateID: 3}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT (.+) FROM "contacts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "is_unsubscribed"}).
			AddRow(9, "aylin@example.com", true))

	dw.dispatchToContact(campaign, step, &models.Template{}, 9, now, false)

	assert.Empty(t, transport.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInlineMissedWindowDoesNotSendLate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)

	stale := now.Add(-30 * time.Minute)
	steps, err := json.Marshal([]models.SequenceStep{{
		Index:        0,
		TemplateID:   3,
		ScheduleType: models.ScheduleTypeOneShot,
		ScheduledAt:  &stale,
	}})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM "campaigns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "steps", "contact_ids"}).
			AddRow(42, 7, models.CampaignStatusActive, string(steps), "[9]"))
	// No prior successful send: the step is reported missed, never fired.
	mock.ExpectQuery(`SELECT count\(\*\) FROM "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	require.NoError(t, dw.processInlineSteps())
	assert.Empty(t, transport.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInlineServedStepIsSkippedSilently(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)

	due := now.Add(-time.Minute)
	steps, err := json.Marshal([]models.SequenceStep{{
		Index:        0,
		TemplateID:   3,
		ScheduleType: models.ScheduleTypeOneShot,
		ScheduledAt:  &due,
	}})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM "campaigns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "steps", "contact_ids"}).
			AddRow(42, 7, models.CampaignStatusActive, string(steps), "[9]"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "sends"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, dw.processInlineSteps())
	assert.Empty(t, transport.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFiredOneShotScheduleDeactivates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dw, mock, transport := newTestWorker(t, now)

	scheduledAt := now.Add(-time.Minute)
	spec, err := json.Marshal(models.SequenceStep{
		TemplateID:   3,
		ScheduleType: models.ScheduleTypeOneShot,
		ScheduledAt:  &scheduledAt,
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM "campaign_schedules"`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "campaign_id", "step_index", "template_id", "schedule_type", "spec", "next_send_at", "is_active"}).
			AddRow(5, 42, 0, 3, models.ScheduleTypeOneShot, string(spec), scheduledAt, true))
	// Campaign is sendable but has no recipients; the firing itself is a no-op.
	mock.ExpectQuery(`SELECT (.+) FROM "campaigns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow(42, 7, models.CampaignStatusActive))
	mock.ExpectQuery(`SELECT (.+) FROM "templates"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "html_content"}).
			AddRow(3, "Hi", "<p>Hi</p>"))
	// Recompute: a consumed one-shot resolves to nil and the row goes inactive.
	mock.ExpectExec(`UPDATE "campaign_schedules" SET (.+)"send_count"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, dw.processSchedules())
	assert.Empty(t, transport.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
