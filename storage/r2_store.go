package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/retrorumble/tournament-lobby/models"
)

const r2KeyPrefix = "matchstate/"

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// Endpoint overrides the Cloudflare endpoint, e.g. for a local S3 emulator.
	Endpoint string
	Prefix   string
}

// s3API is the part of *s3.Client the store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type r2Store struct {
	client     s3API
	bucketName string
	prefix     string
}

func NewR2Store(ctx context.Context, cfg R2Config) (MatchStore, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, errors.New("invalid R2 configuration: access key, secret and bucket are required")
	}
	if cfg.AccountID == "" && cfg.Endpoint == "" {
		return nil, errors.New("invalid R2 configuration: account id or endpoint is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for R2: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.Endpoint != ""
	})

	store := newR2StoreWithClient(client, cfg.BucketName, cfg.Prefix)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.BucketName)}); err != nil {
		return nil, fmt.Errorf("R2 bucket %s not reachable: %w", cfg.BucketName, err)
	}
	return store, nil
}

func newR2StoreWithClient(client s3API, bucket, prefix string) *r2Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &r2Store{client: client, bucketName: bucket, prefix: prefix + r2KeyPrefix}
}

func (s *r2Store) Backend() string { return BackendR2 }

func (s *r2Store) Close() error { return nil }

func (s *r2Store) key(matchID string) string {
	return s.prefix + matchID + ".json"
}

func (s *r2Store) Save(ctx context.Context, m *models.MatchDescriptor) error {
	raw, err := encodeMatch(m)
	if err != nil {
		return err
	}
	key := s.key(m.MatchID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to R2 (key: %s): %w", key, err)
	}
	return nil
}

func (s *r2Store) Load(ctx context.Context, matchID string) (*models.MatchDescriptor, error) {
	raw, err := s.get(ctx, s.key(matchID))
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrMatchStateNotFound, matchID)
		}
		return nil, err
	}
	return decodeMatch(raw)
}

func (s *r2Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from R2 (key: %s): %w", key, err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object from R2 (key: %s): %w", key, err)
	}
	return raw, nil
}

// LoadAllForTournament lists by the match id prefix and then filters on the
// embedded tournament id, since one tournament id can prefix another.
func (s *r2Store) LoadAllForTournament(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(s.prefix + tournamentID + "-r"),
	})

	out := make([]*models.MatchDescriptor, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list R2 objects for %s: %w", tournamentID, err)
		}
		for _, obj := range page.Contents {
			raw, err := s.get(ctx, aws.ToString(obj.Key))
			if err != nil {
				if isNoSuchKey(err) {
					continue
				}
				return nil, err
			}
			m, err := decodeMatch(raw)
			if err != nil {
				return nil, err
			}
			if m.TournamentID == tournamentID {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}
