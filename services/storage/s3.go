package storagesvc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/fundisha/backend/core"
)

type s3Storage struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

var _ core.FileStorage = (*s3Storage)(nil)

// NewS3Storage connects to any S3-compatible store (AWS, MinIO, DO Spaces)
// using the storage section of the config.
func NewS3Storage(ctx context.Context, conf *core.Config) (core.FileStorage, error) {
	sc := conf.Storage

	resolver := aws.EndpointResolverFunc(
		func(service, region string) (aws.Endpoint, error) {
			if sc.Endpoint != "" {
				return aws.Endpoint{URL: sc.Endpoint, HostnameImmutable: true}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(sc.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKeyID, sc.SecretAccessKey, ""),
		),
		awsconfig.WithEndpointResolver(resolver),
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading storage config")
	}

	publicBaseURL := sc.PublicBaseURL
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(sc.Endpoint, "/"), sc.Bucket)
	}
	return &s3Storage{
		client:        s3.NewFromConfig(cfg),
		bucket:        sc.Bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

func (st *s3Storage) Save(ctx context.Context, key, contentType string, content io.Reader) (string, error) {
	_, err := st.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(st.bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrap(err, "uploading object")
	}
	return st.publicBaseURL + "/" + key, nil
}
