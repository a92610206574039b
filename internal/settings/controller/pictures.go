package controller

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/common/config"
	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
)

const profilesSubdir = "profiles"

// allowedPictureTypes maps accepted MIME types to the extension files are stored with.
var allowedPictureTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// PictureStore writes profile pictures under <dir>/profiles and serves them
// from <publicPath>/profiles. The file type is taken from the content, never
// from the client-supplied name or header.
type PictureStore struct {
	dir        string
	publicPath string
	maxBytes   int64
	logger     *logger.Logger
}

func NewPictureStore(cfg config.UploadsConfig, log *logger.Logger) *PictureStore {
	return &PictureStore{
		dir:        filepath.Join(cfg.Dir, profilesSubdir),
		publicPath: strings.TrimSuffix(cfg.PublicPath, "/") + "/" + profilesSubdir,
		maxBytes:   cfg.MaxBytes,
		logger:     log.WithFields(zap.String("component", "profile-pictures")),
	}
}

// Save validates and stores fh for userID and returns its public path.
func (s *PictureStore) Save(userID string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", s.tooLarge()
	}
	src, err := fh.Open()
	if err != nil {
		return "", apperrors.BadRequest("could not read uploaded file")
	}
	defer func() { _ = src.Close() }()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", apperrors.BadRequest("could not read uploaded file")
	}
	ext, ok := extensionFor(mtype)
	if !ok {
		return "", apperrors.ValidationError("profilePicture", "only JPEG, PNG, GIF and WebP images are allowed")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", apperrors.InternalError("failed to read uploaded file", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", apperrors.InternalError("failed to prepare upload directory", err)
	}
	name := fmt.Sprintf("%s-%s%s", userID, uuid.New().String(), ext)
	target := filepath.Join(s.dir, name)

	dst, err := os.Create(target)
	if err != nil {
		return "", apperrors.InternalError("failed to store profile picture", err)
	}
	n, copyErr := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	closeErr := dst.Close()
	if copyErr == nil && n > s.maxBytes {
		_ = os.Remove(target)
		return "", s.tooLarge()
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(target)
		return "", apperrors.InternalError("failed to store profile picture", err)
	}
	return path.Join(s.publicPath, name), nil
}

// Remove deletes a stored picture by its public path. Paths outside the
// store are ignored.
func (s *PictureStore) Remove(publicPath string) {
	name, ok := strings.CutPrefix(publicPath, s.publicPath+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove profile picture", zap.String("path", publicPath), zap.Error(err))
	}
}

// RemoveUser deletes every picture stored for userID.
func (s *PictureStore) RemoveUser(userID string) {
	matches, err := filepath.Glob(filepath.Join(s.dir, userID+"-*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove profile picture", zap.String("file", m), zap.Error(err))
		}
	}
}

func (s *PictureStore) tooLarge() error {
	return apperrors.ValidationError("profilePicture", fmt.Sprintf("file must not exceed %d bytes", s.maxBytes))
}

func extensionFor(mtype *mimetype.MIME) (string, bool) {
	for m := mtype; m != nil; m = m.Parent() {
		if ext, ok := allowedPictureTypes[m.String()]; ok {
			return ext, true
		}
	}
	return "", false
}
