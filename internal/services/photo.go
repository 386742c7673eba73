package services

import (
	"context"
	"fmt"
	"time"

	appconfig "habit-streak-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	uploadURLExpiry = 5 * time.Minute
	viewURLExpiry   = 24 * time.Hour
)

// PhotoLinker resolves a stored photo reference to a URL reviewers can open
type PhotoLinker interface {
	ViewURL(ctx context.Context, photoRef string) (string, error)
}

// PhotoService issues pre-signed S3 URLs for proof photos
type PhotoService struct {
	presign  *s3.PresignClient
	s3Bucket string
}

// NewPhotoService creates a new photo service. Static credentials and a custom
// endpoint are used when configured, otherwise the default AWS chain applies.
func NewPhotoService(ctx context.Context, cfg appconfig.AWSConfig) (*PhotoService, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &PhotoService{
		presign:  s3.NewPresignClient(s3Client),
		s3Bucket: cfg.S3Bucket,
	}, nil
}

// UploadResponse represents the response with pre-signed URL
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	PhotoRef  string `json:"photo_ref"`
	ExpiresIn int    `json:"expires_in"`
}

// UploadURL generates a pre-signed PUT URL and the photo reference to submit afterwards
func (s *PhotoService) UploadURL(ctx context.Context, userID, contentType string) (*UploadResponse, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	photoRef := photoKey(userID, uuid.New().String())

	request, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.s3Bucket),
		Key:         aws.String(photoRef),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(uploadURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &UploadResponse{
		UploadURL: request.URL,
		PhotoRef:  photoRef,
		ExpiresIn: int(uploadURLExpiry.Seconds()),
	}, nil
}

// ViewURL generates a pre-signed GET URL for a stored proof photo
func (s *PhotoService) ViewURL(ctx context.Context, photoRef string) (string, error) {
	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.s3Bucket),
		Key:    aws.String(photoRef),
	}, s3.WithPresignExpires(viewURLExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate view URL: %w", err)
	}
	return request.URL, nil
}

// photoKey builds the S3 key: proofs/{user_id}/{photo_id}.jpg
func photoKey(userID, photoID string) string {
	return fmt.Sprintf("proofs/%s/%s.jpg", userID, photoID)
}
