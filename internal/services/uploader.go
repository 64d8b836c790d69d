package services

import (
	"context"
	"fmt"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"io"
	"path/filepath"
	"strings"
	"time"
)

const maxAvatarBytes = 10 * 1024 * 1024

var avatarExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// AvatarStore persists profile pictures and returns their public URL.
type AvatarStore interface {
	UploadAvatar(ctx context.Context, userID, filename string, size int64, file io.Reader) (string, error)
}

type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are not configured")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: "avatars"}, nil
}

func (s *CloudinaryStore) Ping(ctx context.Context) error {
	_, err := s.cld.Admin.Ping(ctx)
	return err
}

func ValidateAvatar(filename string, size int64) error {
	if !avatarExtensions[strings.ToLower(filepath.Ext(filename))] {
		return Validation("unsupported image format, use JPG, PNG, GIF or WEBP")
	}
	if size > maxAvatarBytes {
		return Validation("image too large, 10MB maximum")
	}
	return nil
}

func (s *CloudinaryStore) UploadAvatar(ctx context.Context, userID, filename string, size int64, file io.Reader) (string, error) {
	if err := ValidateAvatar(filename, size); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	overwrite := true
	res, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     "user_" + userID,
		Overwrite:    &overwrite,
		ResourceType: "image",
	})
	if err != nil {
		return "", &Error{Kind: KindExternal, Message: "avatar upload failed", Err: err}
	}
	if res.SecureURL == "" {
		return "", &Error{Kind: KindExternal, Message: "avatar upload returned no url"}
	}
	return res.SecureURL, nil
}
