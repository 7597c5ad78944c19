package platformsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/mmdatafocus/unified_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	syncLockTTL      = 10 * time.Minute
	maxErrorMessages = 10
)

var (
	ErrSyncRunning        = errors.New("sync already running")
	ErrIntegrationBlocked = errors.New("integration cannot sync")
	ErrUnknownSyncType    = errors.New("unknown sync type")
)

// Worker runs one sync of an integration: it fetches from the unified API, upserts platform users
// and closes the sync log with the resulting counts.
type Worker struct {
	aggregator *unified.Aggregator
	accessor   *unified.Accessor
	settings   config.PlatformSettings
	logger     *logrus.Logger
}

func NewWorker(aggregator *unified.Aggregator) *Worker {
	logger := config.GetLogger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		aggregator: aggregator,
		accessor:   aggregator.Accessor(),
		settings:   aggregator.Settings(),
		logger:     logger,
	}
}

func (w *Worker) Settings() config.PlatformSettings {
	return w.settings
}

// StartSync appends a pending log; Process completes it.
func (w *Worker) StartSync(ctx context.Context, integration *models.Integration, syncType string) (*models.DataSyncLog, error) {
	if !slices.Contains(models.SyncTypes, syncType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSyncType, syncType)
	}
	if !integration.CanSync() {
		return nil, fmt.Errorf("%w: %s is %s", ErrIntegrationBlocked, integration.UnifiedConnectionId, integration.Status)
	}
	return models.CreateSyncStart(ctx, integration.ID, syncType)
}

// RunSync starts and processes a sync inline.
func (w *Worker) RunSync(ctx context.Context, integration *models.Integration, syncType, source string) (*models.DataSyncLog, error) {
	syncLog, err := w.StartSync(ctx, integration, syncType)
	if err != nil {
		return nil, err
	}
	return w.Process(ctx, integration, syncLog, source)
}

// ProcessPayload resumes a sync published through Pub/Sub. Completed logs are left alone.
func (w *Worker) ProcessPayload(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.SyncLogId == 0 {
		return errors.New("invalid payload")
	}
	syncLog, err := models.GetSyncLog(ctx, payload.SyncLogId)
	if err != nil {
		return err
	}
	if syncLog == nil || syncLog.IsCompleted() {
		return nil
	}
	integration, err := models.GetIntegration(ctx, syncLog.IntegrationId)
	if err != nil {
		return err
	}
	if integration == nil {
		return fmt.Errorf("integration %d not found", syncLog.IntegrationId)
	}
	_, err = w.Process(ctx, integration, syncLog, payload.Source)
	return err
}

// Process runs the fetch for a pending log. At most one sync runs per connection while redis is available.
func (w *Worker) Process(ctx context.Context, integration *models.Integration, syncLog *models.DataSyncLog, source string) (*models.DataSyncLog, error) {
	lock, err := w.obtainLock(ctx, integration.UnifiedConnectionId)
	if err != nil {
		if errors.Is(err, ErrSyncRunning) {
			w.markFailed(ctx, integration, syncLog, err, map[string]interface{}{"skipped": true})
		}
		return syncLog, err
	}
	if lock != nil {
		defer func() { _ = lock.Release(context.Background()) }()
	}

	if !integration.CanSync() {
		err := fmt.Errorf("%w: %s is %s", ErrIntegrationBlocked, integration.UnifiedConnectionId, integration.Status)
		w.markFailed(ctx, integration, syncLog, err, nil)
		return syncLog, err
	}

	if source == "" {
		source, _ = w.settings.SystemForConnection(integration.UnifiedConnectionId)
	}
	ctx = utils.SetConnectionIdInContext(ctx, integration.UnifiedConnectionId)
	ctx = utils.SetPlatformInContext(ctx, source)
	run := &syncRun{
		worker:      w,
		integration: integration,
		syncType:    syncLog.SyncType,
		source:      source,
	}

	counts, fetchErr := run.execute(ctx)
	metadata := run.metadata()

	if fetchErr != nil {
		config.LogError(w.logger, "platformsync", "Process", integration.UnifiedConnectionId, metadata, fetchErr)
		return integration.MarkSyncError(ctx, syncLog, syncLog.SyncType, fetchErr, metadata)
	}

	if counts.Status() == models.SyncStatusFailed {
		if err := syncLog.MarkCompleted(ctx, counts, metadata); err != nil {
			return syncLog, err
		}
		msg := fmt.Sprintf("all %d %s records failed", counts.Failed, syncLog.SyncType)
		if len(run.failures) > 0 {
			msg = msg + ": " + run.failures[0]
		}
		return syncLog, integration.RecordError(ctx, msg)
	}
	return integration.MarkSyncSuccess(ctx, syncLog, syncLog.SyncType, counts, metadata)
}

// markFailed closes syncLog without touching the integration. A log that cannot be written stays
// pending, so the failure is logged.
func (w *Worker) markFailed(ctx context.Context, integration *models.Integration, syncLog *models.DataSyncLog, cause error, metadata map[string]interface{}) {
	if err := syncLog.MarkFailed(ctx, cause.Error(), metadata); err != nil {
		config.LogWarn(w.logger, "platformsync", "markFailed", integration.UnifiedConnectionId,
			fmt.Errorf("sync log %d: %w (cause: %v)", syncLog.ID, err, cause))
	}
}

func (w *Worker) obtainLock(ctx context.Context, connectionID string) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, "lock:sync:"+connectionID, syncLockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrSyncRunning
		}
		// redis trouble must not block syncing
		config.LogWarn(w.logger, "platformsync", "obtainLock", connectionID, err)
		return nil, nil
	}
	return lock, nil
}

type syncRun struct {
	worker      *Worker
	integration *models.Integration
	syncType    string
	source      string

	counts   models.SyncCounts
	failures []string
	profiles int
}

func (r *syncRun) execute(ctx context.Context) (models.SyncCounts, error) {
	settings := r.worker.settings
	switch r.syncType {
	case models.SyncTypeUsers:
		if r.source != "" && r.source == settings.CanonicalSystem {
			return r.syncProfiles(ctx)
		}
		return r.syncRecords(ctx, true)
	case models.SyncTypeEmployees, models.SyncTypeContacts:
		return r.syncRecords(ctx, true)
	default:
		return r.syncRecords(ctx, false)
	}
}

// syncProfiles stores every canonical identity together with its unified profile.
func (r *syncRun) syncProfiles(ctx context.Context) (models.SyncCounts, error) {
	bundles, err := r.worker.aggregator.BuildAllProfiles(ctx)
	if err != nil {
		return r.counts, err
	}
	emails := make([]string, 0, len(bundles))
	for email, bundle := range bundles {
		r.counts.Processed++
		user, created, err := models.FindOrCreateFromPlatformInRegion(ctx, r.worker.settings.PhoneRegion, email, r.source, bundle.Identity, &r.integration.ID)
		if err != nil {
			r.fail(email, err)
			continue
		}
		if err := user.UpdateUnifiedProfile(ctx, bundle.UnifiedProfile); err != nil {
			r.fail(email, err)
			continue
		}
		r.stored(created)
		r.profiles++
		emails = append(emails, email)
	}
	if err := r.worker.aggregator.Cache().Invalidate(ctx, emails...); err != nil {
		config.LogWarn(r.worker.logger, "platformsync", "syncProfiles", r.integration.UnifiedConnectionId, err)
	}
	return r.counts, nil
}

// syncRecords fetches the resource and, when upsert is set, stores every record that carries an email.
func (r *syncRun) syncRecords(ctx context.Context, upsert bool) (models.SyncCounts, error) {
	records, err := r.fetch(ctx)
	if err != nil {
		return r.counts, err
	}
	if !upsert {
		r.counts.Processed = len(records)
		return r.counts, nil
	}
	if !slices.Contains(models.PlatformSources, r.source) {
		return r.counts, fmt.Errorf("connection %s has no known platform source", r.integration.UnifiedConnectionId)
	}
	for i, record := range records {
		r.counts.Processed++
		email := unified.RecordEmail(record)
		if email == "" {
			r.fail(fmt.Sprintf("record %d", i), errors.New("record has no email"))
			continue
		}
		if !utils.IsValidEmail(email) {
			r.fail(fmt.Sprintf("record %d", i), fmt.Errorf("invalid email %q", email))
			continue
		}
		_, created, err := models.FindOrCreateFromPlatformInRegion(ctx, r.worker.settings.PhoneRegion, email, r.source, record, &r.integration.ID)
		if err != nil {
			r.fail(email, err)
			continue
		}
		r.stored(created)
	}
	return r.counts, nil
}

func (r *syncRun) fetch(ctx context.Context) ([]json.RawMessage, error) {
	accessor := r.worker.accessor
	conn := r.integration.UnifiedConnectionId
	if _, ok := unified.LookupPlatformEndpoint(r.source, r.syncType); ok {
		return accessor.Fetch(ctx, r.source, r.syncType, conn)
	}
	resource := r.syncType
	if resource == models.SyncTypeUsers && r.integration.PlatformType == models.PlatformTypeHris {
		resource = unified.ResourceEmployees
	}
	return accessor.FetchResource(ctx, resource, conn)
}

func (r *syncRun) stored(created bool) {
	if created {
		r.counts.Created++
	} else {
		r.counts.Updated++
	}
}

func (r *syncRun) fail(ref string, err error) {
	r.counts.Failed++
	if len(r.failures) < maxErrorMessages {
		r.failures = append(r.failures, fmt.Sprintf("%s: %v", ref, err))
	}
}

func (r *syncRun) metadata() map[string]interface{} {
	meta := map[string]interface{}{
		"connection_id": r.integration.UnifiedConnectionId,
		"source":        r.source,
	}
	if r.profiles > 0 {
		meta["profiles"] = r.profiles
	}
	if len(r.failures) > 0 {
		meta["errors"] = r.failures
	}
	return meta
}
