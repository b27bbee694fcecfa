package services

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/curaious/bizops/internal/background"
	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/db"
	"github.com/curaious/bizops/internal/integrations/servicetitan"
	"github.com/curaious/bizops/internal/integrations/slack"
	"github.com/curaious/bizops/internal/notify"
	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/services/ap"
	"github.com/curaious/bizops/internal/services/ar"
	"github.com/curaious/bizops/internal/services/huddle"
	"github.com/curaious/bizops/internal/services/media"
	"github.com/curaious/bizops/internal/services/syncrun"
	"github.com/curaious/bizops/internal/services/tracker"
	"github.com/curaious/bizops/internal/services/user"
)

type Services struct {
	DB     *sqlx.DB
	Runner background.Runner
	Slack  *slack.Client
	Redis  *redis.Client
	// Notifier enqueues to Redis when REDIS_URL is set and posts to Slack directly otherwise.
	Notifier notify.Notifier

	User        *user.UserService
	Activity    *activity.ActivityService
	SyncRuns    *syncrun.SyncRunService
	Payables    *ap.PayablesService
	Receivables *ar.ReceivablesService
	Trackers    *tracker.TrackerService
	Huddle      *huddle.HuddleService
	Media       *media.MediaService

	UploadDir string
}

func NewServices(ctx context.Context, conf *config.Config) *Services {
	return Build(ctx, db.NewConn(conf), conf, background.NewAsync())
}

// Build wires every service on top of an open database handle.
func Build(ctx context.Context, dbconn *sqlx.DB, conf *config.Config, runner background.Runner) *Services {
	slackClient := slack.NewClient(conf.SLACK_WEBHOOK_URL)

	svc := &Services{
		DB:        dbconn,
		Runner:    runner,
		Slack:     slackClient,
		Notifier:  notify.NewDirect(slackClient),
		UploadDir: conf.UPLOAD_DIR,
	}

	if conf.REDIS_URL != "" {
		rdb, err := notify.NewRedisClient(conf.REDIS_URL)
		if err != nil {
			slog.Warn("Redis unavailable, notifications go straight to Slack", slog.Any("error", err))
		} else {
			svc.Redis = rdb
			svc.Notifier = notify.NewQueue(rdb, notify.DefaultQueueKey)
		}
	}

	var st ar.ServiceTitan
	if conf.ServiceTitanEnabled() {
		st = servicetitan.NewClient(ctx, servicetitan.Config{
			ClientID:     conf.ST_CLIENT_ID,
			ClientSecret: conf.ST_CLIENT_SECRET,
			TenantID:     conf.ST_TENANT_ID,
			AppKey:       conf.ST_APP_KEY,
			BaseURL:      conf.ST_BASE_URL,
			AuthURL:      conf.ST_AUTH_URL,
		})
		slog.Info("ServiceTitan client configured", slog.String("tenant", conf.ST_TENANT_ID))
	} else {
		slog.Warn("ServiceTitan credentials missing, sync and task push are disabled")
	}

	svc.Activity = activity.NewActivityService(activity.NewActivityRepo(dbconn), runner)
	svc.SyncRuns = syncrun.NewSyncRunService(syncrun.NewSyncRunRepo(dbconn))
	svc.User = user.NewUserService(user.NewUserRepo(dbconn), conf.OwnerEmails())
	svc.Payables = ap.NewPayablesService(ap.NewPayablesRepo(dbconn), svc.Activity)
	svc.Receivables = ar.NewReceivablesService(ar.NewReceivablesRepo(dbconn), st, svc.SyncRuns, svc.Activity, ar.TaskDefaults{
		TypeID:   int64(conf.ST_TASK_TYPE_ID),
		SourceID: int64(conf.ST_TASK_SOURCE_ID),
	})
	svc.Trackers = tracker.NewTrackerService(tracker.NewTrackerRepo(dbconn), svc.Activity, svc.Notifier, runner)
	svc.Huddle = huddle.NewHuddleService(huddle.NewHuddleRepo(dbconn), svc.Activity)
	svc.Media = media.NewMediaService(media.NewMediaRepo(dbconn), media.NewDiskStore(conf.UPLOAD_DIR), conf.UPLOAD_BASE_URL, svc.Activity)

	return svc
}

// Close waits for in-flight background jobs, then releases connections.
func (s *Services) Close(ctx context.Context) {
	if a, ok := s.Runner.(*background.Async); ok {
		a.Wait(ctx)
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			slog.Warn("Failed to close redis", slog.Any("error", err))
		}
	}
	if err := s.DB.Close(); err != nil {
		slog.Warn("Failed to close database", slog.Any("error", err))
	}
}
