package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/internal/telemetry"
	"github.com/seekscale/smbcacheproxy/pkg/kv"
)

// Background-download queue key schema, §3/§6.
const (
	bgJobKeyPrefix = "bkgrd_dl:job:"
	bgPendingList  = "bkgrd_dl:pending"
	bgProcessing   = "bkgrd_dl:processing"
	bgSucceeded    = "bkgrd_dl:succeeded"
	bgFailed       = "bkgrd_dl:failed"
)

// pollInterval is how often a worker retries after an empty pop (§4.D).
const pollInterval = 500 * time.Millisecond

// maxAttempts is the per-worker-pass retry budget for a job (§3: "up to 3
// retry attempts per worker pass").
const maxAttempts = 3

// JobState is the lifecycle state of a background-download job.
type JobState string

const (
	JobPending JobState = "PENDING"
	JobSuccess JobState = "SUCCESS"
	JobFailure JobState = "FAILURE"
)

// Job is the background-download job record of §3.
type Job struct {
	ID    string   `json:"id"`
	Path  string   `json:"path"`
	Key   string   `json:"key"`
	State JobState `json:"state"`
}

func jobKey(id string) string { return bgJobKeyPrefix + id }

// Enqueue creates a job record and pushes its id to the pending queue. Used
// by the gateway side of §4.D to request a file be pulled from the farm
// back to the studio.
func (t *Transfer) Enqueue(ctx context.Context, path, key string) (string, error) {
	id := uuid.NewString()
	job := Job{ID: id, Path: path, Key: key, State: JobPending}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("transfer: marshal job: %w", err)
	}
	if err := t.store.HSet(ctx, jobKey(id), "record", raw); err != nil {
		return "", fmt.Errorf("transfer: store job record: %w", err)
	}
	if err := t.store.LPush(ctx, bgPendingList, []byte(id)); err != nil {
		return "", fmt.Errorf("transfer: push job to pending queue: %w", err)
	}
	return id, nil
}

// Fetcher fetches a file identified by key into localPath. Implemented by
// the fscache/httpconn get_file path the job references.
type Fetcher func(ctx context.Context, key, localPath string) error

// RunWorker runs a single background-download worker loop until ctx is
// cancelled. Each pass performs an atomic RPopLPush(pending -> processing),
// reads the job record, attempts fetch up to maxAttempts times, and moves
// the job to its terminal queue, per §4.D.
func (t *Transfer) RunWorker(ctx context.Context, localDir string, fetch Fetcher) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := t.processOneJob(ctx, localDir, fetch); err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				select {
				case <-time.After(pollInterval):
				case <-ctx.Done():
					return
				}
				continue
			}
			logger.Warn("transfer: background download worker error", logger.Err(err))
		}
	}
}

func (t *Transfer) processOneJob(ctx context.Context, localDir string, fetch Fetcher) error {
	idRaw, err := t.store.RPopLPush(ctx, bgPendingList, bgProcessing)
	if err != nil {
		return err
	}
	id := string(idRaw)

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanBackgroundDownloadJob)
	defer span.End()

	fields, err := t.store.HGetAll(ctx, jobKey(id))
	if err != nil {
		return fmt.Errorf("transfer: read job %s: %w", id, err)
	}
	var job Job
	if raw, ok := fields["record"]; ok {
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("transfer: decode job %s: %w", id, err)
		}
	}
	job.ID = id

	localPath := localDir + "/" + id

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lastErr = fetch(ctx, job.Key, localPath); lastErr == nil {
			break
		}
		logger.Warn("transfer: background download attempt failed",
			logger.ManifestID(job.Key), logger.Attempt(attempt), logger.Err(lastErr))
	}

	if lastErr == nil {
		job.State = JobSuccess
		t.finishJob(ctx, id, job, bgSucceeded)
	} else {
		job.State = JobFailure
		t.finishJob(ctx, id, job, bgFailed)
	}
	return nil
}

func (t *Transfer) finishJob(ctx context.Context, id string, job Job, terminalList string) {
	raw, err := json.Marshal(job)
	if err == nil {
		if err := t.store.HSet(ctx, jobKey(id), "record", raw); err != nil {
			logger.Warn("transfer: update job state", logger.Err(err))
		}
	}
	if err := t.store.LPush(ctx, terminalList, []byte(id)); err != nil {
		logger.Warn("transfer: push job to terminal queue", logger.Err(err))
	}
	if err := t.store.LRem(ctx, bgProcessing, 1, []byte(id)); err != nil {
		logger.Warn("transfer: remove job from processing queue", logger.Err(err))
	}
}
