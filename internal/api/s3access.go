package api

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultPresignExpiry = 30 * time.Minute

// S3Presigner signs GET URLs for objects referenced by s3:// access URLs.
type S3Presigner struct {
	presign *s3.PresignClient
	expires time.Duration
}

// NewS3Presigner builds a presigner from the default AWS credential chain
// (environment, shared config). endpoint may point at a self-hosted object
// store; path-style addressing is used in that case.
func NewS3Presigner(ctx context.Context, endpoint string) (*S3Presigner, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newPresigner(awscfg, endpoint), nil
}

// NewStaticS3Presigner uses fixed credentials instead of the default chain.
func NewStaticS3Presigner(endpoint, region, accessKey, secretKey string) *S3Presigner {
	awscfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	}
	return newPresigner(awscfg, endpoint)
}

func newPresigner(awscfg aws.Config, endpoint string) *S3Presigner {
	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Presigner{
		presign: s3.NewPresignClient(client),
		expires: defaultPresignExpiry,
	}
}

// PresignGet returns a time-limited HTTPS URL for the object.
func (p *S3Presigner) PresignGet(ctx context.Context, bucket, key string) (string, error) {
	out, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expires))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", bucket, key, err)
	}
	return out.URL, nil
}
