package workers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"haven/services"
	"haven/utils"

	"github.com/sirupsen/logrus"
)

type DispatchWorker struct {
	transport services.Transport

	// Worker configuration
	config DispatchWorkerConfig

	// Processing channels
	queue chan DispatchJob

	// Worker state
	isRunning bool
	mutex     sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	stats      DispatchWorkerStats
	statsMutex sync.RWMutex
}

type DispatchWorkerConfig struct {
	WorkerCount       int           `json:"workerCount"`
	QueueSize         int           `json:"queueSize"`
	ProcessingTimeout time.Duration `json:"processingTimeout"`
	RetryAttempts     int           `json:"retryAttempts"`
	RetryDelay        time.Duration `json:"retryDelay"`
}

type DispatchJob struct {
	ID         string                   `json:"id"`
	Request    services.DispatchRequest `json:"request"`
	RetryCount int                      `json:"retryCount"`
	CreatedAt  time.Time                `json:"createdAt"`
}

type DispatchWorkerStats struct {
	JobsProcessed      int64     `json:"jobsProcessed"`
	JobsDelivered      int64     `json:"jobsDelivered"`
	JobsFailed         int64     `json:"jobsFailed"`
	JobsRetried        int64     `json:"jobsRetried"`
	AverageProcessTime float64   `json:"averageProcessTime"` // ms
	LastProcessedAt    time.Time `json:"lastProcessedAt"`
	QueueLength        int       `json:"queueLength"`
	StartTime          time.Time `json:"startTime"`
}

func DefaultDispatchWorkerConfig() DispatchWorkerConfig {
	return DispatchWorkerConfig{
		WorkerCount:       2,
		QueueSize:         100,
		ProcessingTimeout: 30 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        2 * time.Second,
	}
}

func NewDispatchWorker(transport services.Transport, config DispatchWorkerConfig) *DispatchWorker {
	defaults := DefaultDispatchWorkerConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = defaults.ProcessingTimeout
	}
	if config.RetryAttempts < 0 {
		config.RetryAttempts = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DispatchWorker{
		transport: transport,
		config:    config,
		queue:     make(chan DispatchJob, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		stats: DispatchWorkerStats{
			StartTime: time.Now(),
		},
	}
}

func (dw *DispatchWorker) Start() error {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()

	if dw.isRunning {
		return nil
	}

	dw.isRunning = true

	logrus.Infof("Starting Dispatch Worker with %d workers via %s", dw.config.WorkerCount, dw.transport.Name())

	for i := 0; i < dw.config.WorkerCount; i++ {
		dw.wg.Add(1)
		go dw.worker(i)
	}

	logrus.Info("Dispatch Worker started successfully")
	return nil
}

// Stop waits for in-flight deliveries. Queued jobs that were not picked up are
// dropped.
func (dw *DispatchWorker) Stop() error {
	dw.mutex.Lock()
	if !dw.isRunning {
		dw.mutex.Unlock()
		return nil
	}
	logrus.Info("Stopping Dispatch Worker...")
	dw.isRunning = false
	dw.cancel()
	dw.mutex.Unlock()

	dw.wg.Wait()

	logrus.Info("Dispatch Worker stopped successfully")
	return nil
}

// Dispatch queues the alert and returns immediately.
func (dw *DispatchWorker) Dispatch(ctx context.Context, req services.DispatchRequest) error {
	dw.mutex.RLock()
	defer dw.mutex.RUnlock()

	if !dw.isRunning {
		return utils.ServiceError{
			Code:       utils.ErrCodeInternal,
			Message:    "Dispatch worker is not running",
			StatusCode: http.StatusServiceUnavailable,
		}
	}

	job := DispatchJob{
		ID:        utils.GenerateUUID(),
		Request:   req,
		CreatedAt: time.Now(),
	}

	select {
	case dw.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return utils.ServiceError{
			Code:       utils.ErrCodeQueueFull,
			Message:    "Dispatch queue is full",
			StatusCode: http.StatusServiceUnavailable,
		}
	}
}

func (dw *DispatchWorker) worker(workerID int) {
	defer dw.wg.Done()

	logrus.Debugf("Dispatch worker %d started", workerID)

	for {
		select {
		case job := <-dw.queue:
			dw.process(job, workerID)

		case <-dw.ctx.Done():
			logrus.Debugf("Dispatch worker %d stopping", workerID)
			return
		}
	}
}

func (dw *DispatchWorker) process(job DispatchJob, workerID int) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(dw.ctx, dw.config.ProcessingTimeout)
	defer cancel()

	log := logrus.WithFields(logrus.Fields{
		"worker":    workerID,
		"job":       job.ID,
		"scope":     job.Request.Scope,
		"session":   job.Request.SessionID,
		"attempt":   job.RetryCount + 1,
		"transport": job.Request.Transport,
	})

	err := dw.transport.Deliver(ctx, job.Request)
	dw.updateStats(time.Since(startTime), err == nil)

	if err == nil {
		log.Info("Alert delivered")
		return
	}

	log.Errorf("Alert delivery failed: %v", err)
	dw.retry(job, err)
}

// retry requeues only what the failed attempt left undelivered when the
// transport says what that was, and the whole job otherwise.
func (dw *DispatchWorker) retry(job DispatchJob, err error) {
	if job.RetryCount >= dw.config.RetryAttempts {
		logrus.Errorf("Dispatch job %s failed after %d attempts", job.ID, job.RetryCount+1)
		dw.incrementFailed()
		return
	}

	var de *services.DeliveryError
	if !errors.As(err, &de) || len(de.Failures) == 0 {
		job.RetryCount++
		dw.requeue(job)
		return
	}

	for _, f := range de.Failures {
		dw.requeue(DispatchJob{
			ID:         utils.GenerateUUID(),
			Request:    job.Request.Narrow(f),
			RetryCount: job.RetryCount + 1,
			CreatedAt:  job.CreatedAt,
		})
	}
}

func (dw *DispatchWorker) requeue(job DispatchJob) {
	dw.incrementRetried()

	delay := time.Duration(job.RetryCount) * dw.config.RetryDelay

	dw.wg.Add(1)
	go func() {
		defer dw.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-dw.ctx.Done():
			return
		}

		select {
		case dw.queue <- job:
		case <-dw.ctx.Done():
		default:
			logrus.Errorf("Failed to requeue dispatch job %s", job.ID)
			dw.incrementFailed()
		}
	}()
}

func (dw *DispatchWorker) updateStats(duration time.Duration, delivered bool) {
	dw.statsMutex.Lock()
	defer dw.statsMutex.Unlock()

	dw.stats.JobsProcessed++
	if delivered {
		dw.stats.JobsDelivered++
	}

	ms := float64(duration.Nanoseconds()) / 1e6
	if dw.stats.JobsProcessed == 1 {
		dw.stats.AverageProcessTime = ms
	} else {
		dw.stats.AverageProcessTime = (dw.stats.AverageProcessTime*float64(dw.stats.JobsProcessed-1) + ms) / float64(dw.stats.JobsProcessed)
	}
	dw.stats.LastProcessedAt = time.Now()
}

func (dw *DispatchWorker) incrementFailed() {
	dw.statsMutex.Lock()
	defer dw.statsMutex.Unlock()
	dw.stats.JobsFailed++
}

func (dw *DispatchWorker) incrementRetried() {
	dw.statsMutex.Lock()
	defer dw.statsMutex.Unlock()
	dw.stats.JobsRetried++
}

func (dw *DispatchWorker) GetStats() DispatchWorkerStats {
	dw.statsMutex.RLock()
	defer dw.statsMutex.RUnlock()

	stats := dw.stats
	stats.QueueLength = len(dw.queue)
	return stats
}
