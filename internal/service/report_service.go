package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealerhub/announce-api/internal/models"
	"github.com/dealerhub/announce-api/internal/repository"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
	"github.com/dealerhub/announce-api/pkg/export"
	"github.com/dealerhub/announce-api/pkg/jobs"
	"github.com/dealerhub/announce-api/pkg/storage"
)

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type engagementSource interface {
	EngagementSummary(ctx context.Context, audience string, since *time.Time) ([]models.EngagementRow, error)
}

// ReportServiceConfig wires generation and retention options.
type ReportServiceConfig struct {
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
	RetentionTTL    time.Duration
	Workers         int
	BufferSize      int
	Retries         int
}

// ReportService queues, generates and serves engagement report exports.
type ReportService struct {
	repo    reportRepository
	source  engagementSource
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
	config  ReportServiceConfig
	queue   *jobs.Queue
}

// NewReportService constructs the service. Call Start before enqueueing.
func NewReportService(repo reportRepository, source engagementSource, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetentionTTL <= 0 {
		cfg.RetentionTTL = 7 * 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	svc := &ReportService{
		repo:    repo,
		source:  source,
		storage: store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		config:  cfg,
	}
	svc.queue = jobs.NewQueue("reports", svc.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return svc
}

// Start launches the worker pool and the retention sweeper.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go s.cleanupLoop(ctx)
}

// Stop drains the worker pool.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// CreateReportRequest describes a report generation request.
type CreateReportRequest struct {
	Format   string     `json:"format" validate:"required,oneof=csv pdf"`
	Audience string     `json:"audience"`
	Since    *time.Time `json:"since"`
}

// Enqueue registers a new engagement report job and schedules generation.
func (s *ReportService) Enqueue(ctx context.Context, createdBy string, req CreateReportRequest) (*models.ReportJob, error) {
	format := models.ReportFormat(strings.ToLower(req.Format))
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	job := &models.ReportJob{
		ID:        uuid.NewString(),
		Type:      models.ReportTypeEngagement,
		Status:    models.ReportStatusQueued,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
		Params: models.ReportJobParams{
			Format:   format,
			Audience: strings.ToLower(req.Audience),
			Since:    req.Since,
		},
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type), Payload: job.ID}); err != nil {
		s.logger.Error("failed to enqueue report job", zap.String("job_id", job.ID), zap.Error(err))
		s.fail(context.Background(), job.ID, "dispatch failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule report job")
	}
	return job, nil
}

// Status returns job metadata, with a signed download token once finished.
func (s *ReportService) Status(ctx context.Context, id string) (*models.ReportJob, string, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	var token string
	if job.Status == models.ReportStatusFinished && job.ResultPath != nil {
		token, _, err = s.signer.Generate(job.ID, *job.ResultPath)
		if err != nil {
			s.logger.Warn("failed to sign report download", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return job, token, nil
}

// OpenDownload validates the signed token and opens the underlying file.
func (s *ReportService) OpenDownload(ctx context.Context, jobID, token string) (*os.File, string, error) {
	tokenJobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || tokenJobID != jobID {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	if job.Status != models.ReportStatusFinished || job.ResultPath == nil || *job.ResultPath != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file not available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	return file, relPath, nil
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	jobID, _ := job.Payload.(string)
	if jobID == "" {
		jobID = job.ID
	}

	record, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", jobID, err)
	}

	s.setProgress(ctx, jobID, models.ReportStatusProcessing, 10)

	rows, err := s.source.EngagementSummary(ctx, record.Params.Audience, record.Params.Since)
	if err != nil {
		s.fail(ctx, jobID, "failed to collect engagement data")
		return fmt.Errorf("engagement summary for %s: %w", jobID, err)
	}
	s.setProgress(ctx, jobID, models.ReportStatusProcessing, 50)

	dataset := engagementDataset(rows)
	var payload []byte
	switch record.Params.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Announcement Engagement")
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.fail(ctx, jobID, "failed to render report")
		return fmt.Errorf("render report %s: %w", jobID, err)
	}
	s.setProgress(ctx, jobID, models.ReportStatusProcessing, 80)

	filename := fmt.Sprintf("engagement/%s.%s", jobID, record.Params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.fail(ctx, jobID, "failed to store report file")
		return fmt.Errorf("store report %s: %w", jobID, err)
	}

	now := time.Now().UTC()
	finished := models.ReportStatusFinished
	progress := 100
	if err := s.repo.Update(ctx, jobID, repository.UpdateReportJobParams{
		Status:     &finished,
		Progress:   &progress,
		ResultPath: &relPath,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finalize report %s: %w", jobID, err)
	}
	s.logger.Info("report generated", zap.String("job_id", jobID), zap.String("path", relPath), zap.Int("rows", len(rows)))
	return nil
}

func (s *ReportService) setProgress(ctx context.Context, jobID string, status models.ReportStatus, progress int) {
	if err := s.repo.Update(ctx, jobID, repository.UpdateReportJobParams{Status: &status, Progress: &progress}); err != nil {
		s.logger.Warn("failed to update report progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ReportService) fail(ctx context.Context, jobID, message string) {
	now := time.Now().UTC()
	failed := models.ReportStatusFailed
	if err := s.repo.Update(ctx, jobID, repository.UpdateReportJobParams{
		Status:       &failed,
		FinishedAt:   &now,
		ErrorMessage: &message,
	}); err != nil {
		s.logger.Warn("failed to mark report as failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ReportService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *ReportService) cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.RetentionTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 50)
	if err != nil {
		s.logger.Warn("report cleanup listing failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		if job.ResultPath != nil {
			if err := s.storage.Delete(*job.ResultPath); err != nil {
				s.logger.Warn("failed to delete expired report file", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
		}
		empty := ""
		if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{ResultPath: &empty}); err != nil {
			s.logger.Warn("failed to clear report path", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if deleted, err := s.storage.CleanupOlderThan(s.config.RetentionTTL); err != nil {
		s.logger.Warn("report file sweep failed", zap.Error(err))
	} else if len(deleted) > 0 {
		s.logger.Info("expired report files removed", zap.Int("count", len(deleted)))
	}
}

func engagementDataset(rows []models.EngagementRow) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Announcement ID", "Title", "Priority", "Status", "Views", "Acknowledgments", "Published At"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		publishedAt := ""
		if row.PublishedAt != nil {
			publishedAt = row.PublishedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Announcement ID": row.AnnouncementID,
			"Title":           row.Title,
			"Priority":        string(row.Priority),
			"Status":          string(row.Status),
			"Views":           strconv.Itoa(row.ViewCount),
			"Acknowledgments": strconv.Itoa(row.AckCount),
			"Published At":    publishedAt,
		})
	}
	return dataset
}
