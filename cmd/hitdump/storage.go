package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/flathits/blobstore"
	miniostore "github.com/hupe1980/flathits/blobstore/minio"
	s3store "github.com/hupe1980/flathits/blobstore/s3"
	"github.com/hupe1980/flathits/config"
	"github.com/hupe1980/flathits/resource"
)

// fetcher is implemented by stores that can download a whole blob at once.
type fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// openStore builds the blob store described by st. Reads are throttled when
// rc carries an IO limit.
func openStore(ctx context.Context, st config.Storage, rc *resource.Controller) (blobstore.BlobStore, error) {
	var store blobstore.BlobStore
	switch st.Kind {
	case "", "local":
		root := st.Root
		if root == "" {
			root = "."
		}
		store = blobstore.NewLocalStore(root)
	case "s3":
		s, err := newS3Store(ctx, st)
		if err != nil {
			return nil, err
		}
		store = s
	case "minio":
		s, err := newMinioStore(st)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown storage kind %q", st.Kind)
	}
	if rc != nil && rc.Config().IOLimitBytesPerSec > 0 {
		store = blobstore.NewThrottled(store, rc)
	}
	return store, nil
}

func newS3Store(ctx context.Context, st config.Storage) (*s3store.Store, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if st.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(st.Region))
	}
	if st.AccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(st.AccessKey, st.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if st.Endpoint != "" {
			o.BaseEndpoint = aws.String(st.Endpoint)
			o.UsePathStyle = true
		}
	})
	return s3store.NewStore(client, st.Bucket, st.Prefix), nil
}

func newMinioStore(st config.Storage) (*miniostore.Store, error) {
	if st.Endpoint == "" {
		return nil, fmt.Errorf("minio storage needs an endpoint")
	}
	client, err := minio.New(st.Endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(st.AccessKey, st.SecretKey, ""),
		Secure: st.Secure,
		Region: st.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return miniostore.NewStore(client, st.Bucket, st.Prefix), nil
}

// readAll returns the content of a blob, using a whole-object download when
// the store offers one.
func readAll(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	if f, ok := store.(fetcher); ok {
		return f.Fetch(ctx, name)
	}
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, err
	}
	// Mapped data does not outlive Close.
	return bytes.Clone(data), nil
}
