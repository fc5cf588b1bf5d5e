// Package jobs contains implementations of scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alem-hub/palms-core/internal/application/query"
	"github.com/alem-hub/palms-core/internal/domain/application"
	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/logger"
	"github.com/alem-hub/palms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OVERDUE APPLICATIONS REMINDER
// Раз в день напоминает профессорам о заявках без ответа: срочные
// (последний день) и просроченные.
// ══════════════════════════════════════════════════════════════════════════════

// BacklogSource lists unanswered applications grouped by professor.
type BacklogSource interface {
	Handle(ctx context.Context) ([]query.ProfessorBacklog, error)
}

// OverdueApplicationsConfig configures the reminder.
type OverdueApplicationsConfig struct {
	// SendMail also queues one digest e-mail per professor.
	SendMail bool
	// Timeout bounds a whole run.
	Timeout time.Duration
}

// DefaultOverdueApplicationsConfig returns defaults.
func DefaultOverdueApplicationsConfig() OverdueApplicationsConfig {
	return OverdueApplicationsConfig{SendMail: true, Timeout: 5 * time.Minute}
}

// OverdueApplicationsStats summarizes one run.
type OverdueApplicationsStats struct {
	Professors int
	Urgent     int
	Missed     int
	Delivered  int
	Failed     int
	StartedAt  time.Time
	Duration   time.Duration
}

// OverdueApplicationsJob implements scheduler.Job.
type OverdueApplicationsJob struct {
	source  BacklogSource
	gateway notification.Gateway
	mailer  notification.Mailer
	config  OverdueApplicationsConfig
	log     *logger.Logger
	now     func() time.Time

	lastRunStats atomic.Pointer[OverdueApplicationsStats]
}

// NewOverdueApplicationsJob creates the job. mailer may be nil.
func NewOverdueApplicationsJob(source BacklogSource, gateway notification.Gateway, mailer notification.Mailer, config OverdueApplicationsConfig, log *logger.Logger) *OverdueApplicationsJob {
	if log == nil {
		log = logger.Default()
	}
	return &OverdueApplicationsJob{
		source:  source,
		gateway: gateway,
		mailer:  mailer,
		config:  config,
		log:     log.With(logger.Component("overdue_applications_job")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name implements scheduler.Job.
func (j *OverdueApplicationsJob) Name() string { return "overdue_applications" }

// Description implements scheduler.Job.
func (j *OverdueApplicationsJob) Description() string {
	return "Reminds professors about applications waiting for an answer"
}

// LastRunStats returns the statistics of the last completed run.
func (j *OverdueApplicationsJob) LastRunStats() *OverdueApplicationsStats {
	return j.lastRunStats.Load()
}

// Run implements scheduler.Job. A failed delivery to one professor does not
// stop the others; the run fails only when the backlog cannot be read.
func (j *OverdueApplicationsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &OverdueApplicationsStats{StartedAt: j.now()}
	defer func() {
		stats.Duration = j.now().Sub(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	backlogs, err := j.source.Handle(ctx)
	if err != nil {
		return fmt.Errorf("load backlog: %w", err)
	}

	for _, b := range backlogs {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Professors++
		stats.Urgent += len(b.Urgent)
		stats.Missed += len(b.Missed)

		for _, dto := range append(append([]query.ApplicationDTO{}, b.Urgent...), b.Missed...) {
			if err := j.remind(ctx, dto); err != nil {
				stats.Failed++
				j.log.Warn("reminder not delivered",
					logger.String("application_id", dto.ID),
					logger.UserID(b.ProfessorUserID),
					logger.Err(err),
				)
				continue
			}
			stats.Delivered++
		}

		j.mailDigest(ctx, b)
	}

	j.log.Info("reminders sent",
		logger.Int("professors", stats.Professors),
		logger.Int("urgent", stats.Urgent),
		logger.Int("missed", stats.Missed),
		logger.Int("failed", stats.Failed),
	)
	return nil
}

// remind posts to the conversation of the application.
func (j *OverdueApplicationsJob) remind(ctx context.Context, dto query.ApplicationDTO) error {
	body := fmt.Sprintf("The application to %s sent on %s is waiting for your answer. Today is the last day to respond.",
		projectLabel(dto), humanDate(dto.SentDate))
	if dto.Urgency == string(application.UrgencyMissed) {
		body = fmt.Sprintf("The application to %s sent on %s is overdue by %d day(s). Please accept or reject it.",
			projectLabel(dto), humanDate(dto.SentDate), dto.DaysWaiting-application.ResponseDays)
	}

	msg, err := notification.NewMessage(notification.ChannelApplication, dto.ID, dto.ProjectName,
		"Application reminder", body, []string{dto.ProfessorUserID}, shared.SystemActor)
	if err != nil {
		return err
	}
	if err := j.gateway.Send(ctx, msg); err != nil {
		return err
	}
	_ = j.gateway.Notify(ctx, notification.Toast{
		UserID: dto.ProfessorUserID,
		Title:  "Application reminder",
		Body:   projectLabel(dto),
	})
	return nil
}

func (j *OverdueApplicationsJob) mailDigest(ctx context.Context, b query.ProfessorBacklog) {
	if j.mailer == nil || !j.config.SendMail {
		return
	}

	ids := make([]string, 0, b.Total())
	oldest := 0
	for _, dto := range b.Urgent {
		ids = append(ids, dto.ID)
	}
	for _, dto := range b.Missed {
		ids = append(ids, dto.ID)
		oldest = max(oldest, dto.DaysWaiting)
	}

	err := j.mailer.SendMail(ctx, notification.Mail{
		Template:  notification.TemplateApplicationOverdue,
		ToUserIDs: []string{b.ProfessorUserID},
		Data: map[string]string{
			"urgent":          fmt.Sprint(len(b.Urgent)),
			"missed":          fmt.Sprint(len(b.Missed)),
			"application_ids": strings.Join(ids, ","),
			"oldest_days":     fmt.Sprint(oldest),
		},
	})
	if err != nil {
		j.log.Warn("reminder mail not queued", logger.UserID(b.ProfessorUserID), logger.Err(err))
	}
}

// humanDate renders a YYYY-MM-DD date for reminder texts.
func humanDate(value string) string {
	d, err := timeutil.ParseDate(value, time.UTC)
	if err != nil {
		return value
	}
	return d.Format(timeutil.FormatHumanDate)
}

func projectLabel(dto query.ApplicationDTO) string {
	if dto.ProjectName != "" {
		return dto.ProjectName
	}
	return "project " + dto.ProjectID
}
