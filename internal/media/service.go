package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/familiar-chat/mediagate/internal/objectstore"
	"github.com/familiar-chat/mediagate/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxPlacementAttempts bounds how many random tokens are drawn before an
// upload to a randomized slot gives up.
const maxPlacementAttempts = 5

var (
	ErrStorage            = errors.New("storage failure")
	ErrPlacementExhausted = errors.New("no free storage slot")
)

// deleteFamilies lists which manifest owner kinds each delete endpoint may
// remove. A visitor cannot remove an agent's received-message image even
// though both live under the same visitor prefix.
var deleteFamilies = map[models.OwnerKind][]models.OwnerKind{
	models.OwnerVisitorMessage:         {models.OwnerVisitorMessage},
	models.OwnerVisitorReceivedMessage: {models.OwnerVisitorReceivedMessage},
	models.OwnerDocumentImage:          {models.OwnerDocumentImage},
	models.OwnerDocumentVideo:          {models.OwnerDocumentVideo},
}

type Service struct {
	db     *gorm.DB
	store  objectstore.Store
	policy *Policy
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces the clock used for cache-busting timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPolicy replaces the placement policy.
func WithPolicy(p *Policy) Option {
	return func(s *Service) { s.policy = p }
}

func NewService(db *gorm.DB, store objectstore.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:     db,
		store:  store,
		policy: NewPolicy(nil),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UploadInput struct {
	Grant       *auth.Grant
	Kind        models.OwnerKind
	OwnerID     string
	ContentType string
	Size        int64
	Body        io.Reader
}

type DeleteInput struct {
	Grant   *auth.Grant
	Kind    models.OwnerKind
	OwnerID string
	Name    string
}

// Result describes a stored or removed asset. FilePath carries the
// cache-busting date parameter so overwritten slots are refetched.
type Result struct {
	StoragePath string `json:"-"`
	FilePath    string `json:"file_path"`
}

// Upload gates the declared content type, places the asset and writes it to
// the object store. Body is read exactly once.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Result, error) {
	if in.Grant == nil {
		return nil, auth.ErrForbidden
	}
	in.ContentType = strings.ToLower(strings.TrimSpace(in.ContentType))
	if err := CheckContentType(in.ContentType, CategoryOf(in.Kind)); err != nil {
		metrics.Uploads.WithLabelValues(string(in.Kind), "rejected").Inc()
		return nil, err
	}

	var (
		res *Result
		err error
	)
	if Deterministic(in.Kind) {
		res, err = s.uploadFixed(ctx, in)
	} else {
		res, err = s.uploadRandom(ctx, in)
	}
	if err != nil {
		metrics.Uploads.WithLabelValues(string(in.Kind), "error").Inc()
		return nil, err
	}

	metrics.Uploads.WithLabelValues(string(in.Kind), "ok").Inc()
	s.logger.Info("asset stored",
		"organization_id", in.Grant.OrganizationID,
		"kind", in.Kind,
		"path", res.StoragePath,
		"size", in.Size,
	)
	return res, nil
}

func (s *Service) uploadFixed(ctx context.Context, in UploadInput) (*Result, error) {
	path, err := s.policy.UploadPath(in.Grant.OrganizationID, in.Kind, in.OwnerID)
	if err != nil {
		return nil, err
	}

	url, err := s.put(ctx, path, in)
	if err != nil {
		return nil, err
	}

	row := s.manifestRow(path, in)
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "storage_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content_type",
			"size",
			"uploaded_by",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("%w: recording %s: %v", ErrStorage, path, err)
	}

	return s.result(path, url), nil
}

// uploadRandom reserves a manifest row for a fresh token before writing, so
// two uploads can never silently share a randomized slot.
func (s *Service) uploadRandom(ctx context.Context, in UploadInput) (*Result, error) {
	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		path, err := s.policy.UploadPath(in.Grant.OrganizationID, in.Kind, in.OwnerID)
		if err != nil {
			return nil, err
		}

		row := s.manifestRow(path, in)
		tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_path"}},
			DoNothing: true,
		}).Create(&row)
		if tx.Error != nil {
			return nil, fmt.Errorf("%w: reserving %s: %v", ErrStorage, path, tx.Error)
		}
		if tx.RowsAffected == 0 {
			s.logger.Warn("storage slot collision, drawing a new token", "path", path, "attempt", attempt+1)
			continue
		}

		url, err := s.put(ctx, path, in)
		if err != nil {
			s.release(row)
			return nil, err
		}
		return s.result(path, url), nil
	}

	return nil, fmt.Errorf("%w: %w after %d attempts", ErrStorage, ErrPlacementExhausted, maxPlacementAttempts)
}

func (s *Service) put(ctx context.Context, path string, in UploadInput) (string, error) {
	url, err := s.store.Put(ctx, path, in.Body, objectstore.PutOptions{
		ContentType: in.ContentType,
		Public:      true,
	})
	if err != nil {
		s.logger.Error("object store write failed", "path", path, "error", err)
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return url, nil
}

// release drops a reservation whose object was never written. It runs even
// when the request context has been cancelled.
func (s *Service) release(row models.MediaAsset) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.WithContext(ctx).Where("id = ?", row.ID).Delete(&models.MediaAsset{}).Error; err != nil {
		s.logger.Error("failed to release storage slot", "path", row.StoragePath, "error", err)
	}
}

func (s *Service) manifestRow(path string, in UploadInput) models.MediaAsset {
	return models.MediaAsset{
		OrganizationID: in.Grant.OrganizationID,
		OwnerKind:      in.Kind,
		OwnerID:        in.OwnerID,
		StoragePath:    path,
		ContentType:    in.ContentType,
		Size:           in.Size,
		UploadedBy:     in.Grant.PrincipalID,
	}
}

// Delete removes a randomized-slot asset. The file name must resolve to a
// manifest entry of the endpoint's family (and, for visitor-scoped kinds, of
// the same visitor); anything else is forbidden.
func (s *Service) Delete(ctx context.Context, in DeleteInput) (*Result, error) {
	if in.Grant == nil {
		return nil, auth.ErrForbidden
	}

	path, err := s.policy.DeletePath(in.Grant.OrganizationID, in.Kind, in.OwnerID, in.Name)
	if err != nil {
		metrics.Deletes.WithLabelValues(string(in.Kind), "denied").Inc()
		return nil, auth.ErrForbidden
	}

	var row models.MediaAsset
	err = s.db.WithContext(ctx).
		Where("storage_path = ? AND organization_id = ?", path, in.Grant.OrganizationID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.Deletes.WithLabelValues(string(in.Kind), "denied").Inc()
			return nil, auth.ErrForbidden
		}
		return nil, fmt.Errorf("%w: loading %s: %v", ErrStorage, path, err)
	}
	if !s.owns(in, row) {
		s.logger.Debug("delete of foreign asset refused", "path", path, "owner_kind", row.OwnerKind)
		metrics.Deletes.WithLabelValues(string(in.Kind), "denied").Inc()
		return nil, auth.ErrForbidden
	}

	if err := s.store.Delete(ctx, path); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		s.logger.Error("object store delete failed", "path", path, "error", err)
		metrics.Deletes.WithLabelValues(string(in.Kind), "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := s.db.WithContext(ctx).Delete(&row).Error; err != nil {
		return nil, fmt.Errorf("%w: removing manifest for %s: %v", ErrStorage, path, err)
	}

	metrics.Deletes.WithLabelValues(string(in.Kind), "ok").Inc()
	s.logger.Info("asset deleted",
		"organization_id", in.Grant.OrganizationID,
		"kind", in.Kind,
		"path", path,
	)
	return &Result{StoragePath: path}, nil
}

func (s *Service) owns(in DeleteInput, row models.MediaAsset) bool {
	allowed := false
	for _, k := range deleteFamilies[in.Kind] {
		if row.OwnerKind == k {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if in.OwnerID != "" && row.OwnerID != in.OwnerID {
		return false
	}
	return true
}

func (s *Service) result(path, url string) *Result {
	return &Result{
		StoragePath: path,
		FilePath:    fmt.Sprintf("%s?date=%d", url, s.now().UnixMilli()),
	}
}
