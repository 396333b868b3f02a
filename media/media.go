// Package media stores uploaded images with Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"strings"

	"wayfarer/apperror"
	"wayfarer/logger"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const rootFolder = "wayfarer"

// MaxUploadSize bounds multipart image uploads.
const MaxUploadSize = 10 << 20

var ErrNotConfigured = apperror.Unavailable("Image uploads are not configured")

type Result struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

type Uploader interface {
	Upload(ctx context.Context, file multipart.File, folder, publicID string) (*Result, error)
	Destroy(ctx context.Context, publicID string) error
}

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(url string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, file multipart.File, folder, publicID string) (*Result, error) {
	params := uploader.UploadParams{
		Folder:         path.Join(rootFolder, Folder(folder)),
		PublicID:       publicID,
		Transformation: "c_limit,w_1920,h_1920,q_auto:good,f_auto",
	}
	res, err := c.cld.Upload.Upload(ctx, file, params)
	if err != nil {
		return nil, err
	}
	if res.Error.Message != "" {
		return nil, errors.New(res.Error.Message)
	}
	return &Result{URL: res.SecureURL, PublicID: res.PublicID, Width: res.Width, Height: res.Height}, nil
}

func (c *Cloudinary) Destroy(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return err
	}
	if res.Error.Message != "" {
		return errors.New(res.Error.Message)
	}
	return nil
}

type disabled struct{}

func (disabled) Upload(context.Context, multipart.File, string, string) (*Result, error) {
	return nil, ErrNotConfigured
}

func (disabled) Destroy(context.Context, string) error {
	return nil
}

var current Uploader = disabled{}

// Init installs the Cloudinary uploader, or a disabled one when url is empty.
func Init(url string) error {
	if url == "" {
		logger.Log.Warn("CLOUDINARY_URL not set, image uploads disabled")
		current = disabled{}
		return nil
	}
	c, err := NewCloudinary(url)
	if err != nil {
		return err
	}
	current = c
	return nil
}

func Default() Uploader {
	return current
}

// Use replaces the uploader; tests install fakes with it.
func Use(u Uploader) {
	current = u
}

// Folder restricts client supplied folder names to a known set.
func Folder(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "avatars":
		return "avatars"
	case "posts":
		return "posts"
	case "destinations":
		return "destinations"
	case "guides":
		return "guides"
	case "photos", "gallery":
		return "photos"
	}
	return "misc"
}
