package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"pixelsync-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const presignTTL = time.Hour

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// S3API is the subset of the S3 client used by the catalog
type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner signs GET urls for stored images
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures the bucket-backed catalog
type S3Options struct {
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Endpoint  string
	PerPage   int
}

// S3Catalog serves photos stored as objects under a bucket prefix. Author and
// alt text come from the object metadata keys author-name, author-username,
// author-avatar and alt.
type S3Catalog struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	perPage   int
}

// NewS3Catalog creates an S3 client from opts and wraps it as a catalog
func NewS3Catalog(ctx context.Context, opts S3Options) (*S3Catalog, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3CatalogWithClient(client, s3.NewPresignClient(client), opts.Bucket, opts.Prefix, opts.PerPage), nil
}

// NewS3CatalogWithClient wraps existing clients
func NewS3CatalogWithClient(client S3API, presigner Presigner, bucket, prefix string, perPage int) *S3Catalog {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Catalog{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		perPage:   perPage,
	}
}

// List pages through the image objects under the prefix. Popular order is
// not tracked by the bucket and falls back to latest.
func (c *S3Catalog) List(ctx context.Context, params ListParams) (*Page, error) {
	params = params.Normalize(c.perPage)

	var objects []types.Object
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range out.Contents {
			if isImageKey(aws.ToString(obj.Key)) {
				objects = append(objects, obj)
			}
		}
	}

	sort.SliceStable(objects, func(i, j int) bool {
		ti, tj := aws.ToTime(objects[i].LastModified), aws.ToTime(objects[j].LastModified)
		if params.OrderBy == OrderOldest {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	start := (params.Page - 1) * params.PerPage
	page := &Page{Photos: []models.Photo{}, Page: params.Page, PerPage: params.PerPage}
	if start >= len(objects) {
		return page, nil
	}
	end := min(start+params.PerPage, len(objects))

	for _, obj := range objects[start:end] {
		photo, err := c.describe(ctx, aws.ToString(obj.Key))
		if err != nil {
			return nil, err
		}
		page.Photos = append(page.Photos, *photo)
	}
	return page, nil
}

// Get looks the photo up by trying each known image extension
func (c *S3Catalog) Get(ctx context.Context, photoID string) (*models.Photo, error) {
	if photoID == "" || strings.Contains(photoID, "/") {
		return nil, fmt.Errorf("%q: %w", photoID, ErrNotFound)
	}
	for _, ext := range imageExtensions {
		photo, err := c.describe(ctx, c.prefix+photoID+ext)
		if err == nil {
			return photo, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", photoID, ErrNotFound)
}

func (c *S3Catalog) describe(ctx context.Context, key string) (*models.Photo, error) {
	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to head object %s: %w", key, err)
	}

	request, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = presignTTL
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign %s: %w", key, err)
	}

	meta := head.Metadata
	photo := &models.Photo{
		ID:              photoIDFromKey(key),
		ImageURLRegular: request.URL,
		ImageURLSmall:   request.URL,
		Author: models.Author{
			Name:      meta["author-name"],
			Username:  meta["author-username"],
			AvatarURL: meta["author-avatar"],
		},
	}
	if alt, ok := meta["alt"]; ok && alt != "" {
		photo.AltDescription = &alt
	}
	return photo, nil
}

func isImageKey(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func photoIDFromKey(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
