package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/grade-flow-api/internal/models"
	"github.com/noah-isme/grade-flow-api/pkg/export"
	"github.com/noah-isme/grade-flow-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService builds grade datasets and persists rendered files.
type ExportService struct {
	records gradeRecordStore
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(records gradeRecordStore, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		records: records,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds the dataset for a job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	signedURL := fmt.Sprintf("%s/exports/download/%s", prefix, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	termPart := sanitizeFilename(job.Params.TermID)
	return fmt.Sprintf("%s_%s_%s.%s", string(job.Type), termPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ExportTypeRecords:
		return s.buildRecordsDataset(ctx, job.Params)
	case models.ExportTypeOutcomes:
		return s.buildOutcomesDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (s *ExportService) buildRecordsDataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	filter := filterFromParams(params)
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, map[string]string{
			"Record ID":      record.ID,
			"Student ID":     record.StudentID,
			"Class ID":       record.ClassID,
			"Subject ID":     record.SubjectID,
			"Term ID":        record.TermID,
			"Attempt":        fmt.Sprintf("%d", record.AttemptNumber),
			"State":          string(record.State),
			"Continuous Avg": exportScore(record.ContinuousAvg),
			"Exam Score":     exportScore(record.ExamScore),
			"Final Avg":      exportScore(record.CourseFinalAvg),
			"Version":        fmt.Sprintf("%d", record.Version),
			"Updated At":     record.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Record ID", "Student ID", "Class ID", "Subject ID", "Term ID", "Attempt", "State", "Continuous Avg", "Exam Score", "Final Avg", "Version", "Updated At"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Grade Records %s", params.TermID)
	return dataset, title, nil
}

func (s *ExportService) buildOutcomesDataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	filter := filterFromParams(params)
	filter.State = models.StateFinalized
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	open, err := s.records.ListOpenRetakeOrigins(ctx, ids)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		outcome := AnalyzeOutcome(record.ContinuousAvg, record.ExamScore, record.CourseFinalAvg)
		openFlag := "no"
		if open[record.ID] {
			openFlag = "yes"
		}
		rows = append(rows, map[string]string{
			"Student ID":     record.StudentID,
			"Subject ID":     record.SubjectID,
			"Term ID":        record.TermID,
			"Attempt":        fmt.Sprintf("%d", record.AttemptNumber),
			"Continuous Avg": exportScore(record.ContinuousAvg),
			"Exam Score":     exportScore(record.ExamScore),
			"Final Avg":      exportScore(record.CourseFinalAvg),
			"Outcome":        string(outcome),
			"Open Retake":    openFlag,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student ID", "Subject ID", "Term ID", "Attempt", "Continuous Avg", "Exam Score", "Final Avg", "Outcome", "Open Retake"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Retake Outcomes %s", params.TermID)
	return dataset, title, nil
}

func filterFromParams(params models.ExportJobParams) models.GradeRecordFilter {
	filter := models.GradeRecordFilter{TermID: params.TermID}
	if params.ClassID != nil {
		filter.ClassID = *params.ClassID
	}
	if params.SubjectID != nil {
		filter.SubjectID = *params.SubjectID
	}
	if params.State != nil {
		filter.State = *params.State
	}
	return filter
}

func exportScore(value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *value)
}
