package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/internal/models"
	"github.com/noah-isme/meal-photo-api/pkg/export"
	"github.com/noah-isme/meal-photo-api/pkg/storage"
)

type exportPhotoRepository interface {
	List(ctx context.Context, filter models.PhotoFilter) ([]models.Photo, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
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
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds meal activity datasets and persists rendered files.
type ExportService struct {
	photos  exportPhotoRepository
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(photos exportPhotoRepository, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
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
		photos:  photos,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds the dataset according to job parameters and stores the
// rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
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
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

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

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	schoolPart := sanitizeFilename(job.Params.SchoolID)
	return fmt.Sprintf("meal_activity_%s_%s.%s", schoolPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

const exportPageSize = 100

func (s *ExportService) buildDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	headers := []string{"Photo ID", "School ID", "Meal", "Uploaded By", "Timestamp", "Social Status", "Social Post ID", "Remarks"}

	var dataRows []map[string]string
	for page := 1; ; page++ {
		filter := models.PhotoFilter{
			SchoolID: params.SchoolID,
			MealType: params.MealType,
			From:     params.From,
			To:       params.To,
			Page:     page,
			PageSize: exportPageSize,
		}
		photos, total, err := s.photos.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, p := range photos {
			dataRows = append(dataRows, map[string]string{
				"Photo ID":       p.ID,
				"School ID":      p.SchoolID,
				"Meal":           p.MealType.Label(),
				"Uploaded By":    p.UploadedBy,
				"Timestamp":      p.Timestamp.UTC().Format(time.RFC3339),
				"Social Status":  socialStatusLabel(p.SocialStatus),
				"Social Post ID": deref(p.SocialPostID),
				"Remarks":        fmt.Sprintf("%d", len(p.Remarks)),
			})
		}
		if len(photos) == 0 || len(dataRows) >= total {
			break
		}
	}

	dataset := export.Dataset{Headers: headers, Rows: dataRows}

	scope := params.SchoolID
	if scope == "" {
		scope = "All Schools"
	}
	title := fmt.Sprintf("Meal Activity Report %s", scope)
	return dataset, title, nil
}

func socialStatusLabel(status *models.SocialStatus) string {
	if status == nil {
		return string(models.SocialPending)
	}
	return string(*status)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
