package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/blobstore"
	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/service"
	"github.com/jwalitptl/health-records/pkg/auth"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
)

// DownloadPath is the route serving signed download links.
const DownloadPath = "/api/v1/files/download"

type Config struct {
	MaxBytes      int64
	URLTTL        time.Duration
	PublicBaseURL string
}

// Upload is one file of a multi-file upload.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type Service struct {
	blobs    blobstore.Store
	patients repository.PatientRepository
	tokens   auth.JWTService
	cfg      Config
	now      func() time.Time
}

func NewService(blobs blobstore.Store, patients repository.PatientRepository, tokens auth.JWTService, cfg Config) *Service {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	cfg.PublicBaseURL = strings.TrimSuffix(cfg.PublicBaseURL, "/")
	return &Service{blobs: blobs, patients: patients, tokens: tokens, cfg: cfg, now: time.Now}
}

// Upload stores every file under patients/{id}/{folder}. Files in one batch
// get consecutive millisecond stamps so equal names never share a key. Files
// stored before a failure are kept.
func (s *Service) Upload(ctx context.Context, patientID uuid.UUID, folder string, uploads []Upload) ([]*model.StoredFile, error) {
	if len(uploads) == 0 {
		return nil, apperrors.BadRequest("at least one file is required", nil)
	}
	folder = folderOrDefault(folder)
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, service.RepoError("patient", err)
	}

	at := s.now()
	out := make([]*model.StoredFile, 0, len(uploads))
	for i, u := range uploads {
		key, err := blobstore.NewKey(patientID, folder, u.Name, at.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			return out, apperrors.BadRequest(err.Error(), err)
		}
		body := u.Body
		if s.cfg.MaxBytes > 0 {
			body = &limitedReader{r: io.LimitReader(u.Body, s.cfg.MaxBytes+1), max: s.cfg.MaxBytes}
		}
		obj, err := s.blobs.Put(ctx, key, body, u.ContentType)
		if err != nil {
			if errors.Is(err, blobstore.ErrTooLarge) {
				return out, apperrors.BadRequest(fmt.Sprintf("%s exceeds %d bytes", u.Name, s.cfg.MaxBytes), err)
			}
			return out, apperrors.Internal(fmt.Errorf("storing %s: %w", u.Name, err))
		}
		f, err := s.describe(obj)
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

// List returns the patient's files in folder, or in every folder when folder
// is empty, each with a fresh download URL.
func (s *Service) List(ctx context.Context, patientID uuid.UUID, folder string) ([]*model.StoredFile, error) {
	prefix := blobstore.PatientPrefix(patientID)
	if folder != "" {
		if err := blobstore.ValidateFolder(folder); err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		prefix = blobstore.FolderPrefix(patientID, folder)
	}
	objs, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	out := make([]*model.StoredFile, 0, len(objs))
	for _, obj := range objs {
		f, err := s.describe(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Delete removes one stored file by its stored name.
func (s *Service) Delete(ctx context.Context, patientID uuid.UUID, folder, name string) error {
	folder = folderOrDefault(folder)
	if err := blobstore.ValidateFolder(folder); err != nil {
		return apperrors.BadRequest(err.Error(), err)
	}
	clean, err := blobstore.SanitizeName(name)
	if err != nil || clean != name {
		return apperrors.BadRequest("invalid file name", err)
	}
	if err := s.blobs.Delete(ctx, blobstore.FolderPrefix(patientID, folder)+name); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return apperrors.NotFound("file", err)
		}
		return apperrors.Internal(err)
	}
	return nil
}

// Open resolves a signed download token.
func (s *Service) Open(ctx context.Context, token string) (io.ReadCloser, *model.StoredFile, error) {
	key, err := s.tokens.ValidateFileToken(token)
	if err != nil {
		return nil, nil, apperrors.Unauthorized(err)
	}
	rc, obj, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil, apperrors.NotFound("file", err)
		}
		return nil, nil, apperrors.Internal(err)
	}
	f, err := s.describe(obj)
	if err != nil {
		rc.Close()
		return nil, nil, err
	}
	return rc, f, nil
}

func (s *Service) describe(obj *blobstore.Object) (*model.StoredFile, error) {
	k, err := blobstore.ParseKey(obj.Key)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	token, err := s.tokens.GenerateFileToken(obj.Key, s.cfg.URLTTL)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	uploaded := k.UploadedAt
	if uploaded.IsZero() {
		uploaded = obj.ModTime
	}
	return &model.StoredFile{
		Name:        k.Name,
		Key:         obj.Key,
		Folder:      k.Folder,
		PatientID:   k.PatientID,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		UploadedAt:  uploaded,
		URL:         s.cfg.PublicBaseURL + DownloadPath + "?token=" + url.QueryEscape(token),
	}, nil
}

func folderOrDefault(folder string) string {
	if folder == "" {
		return model.DefaultFileFolder
	}
	return folder
}

type limitedReader struct {
	r   io.Reader
	n   int64
	max int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, blobstore.ErrTooLarge
	}
	return n, err
}
