// Package s3util holds the S3 helpers shared by the hunt Lambdas: reading
// the required-term metadata of an upload, fetching image bytes, presigning
// uploads and tagging processed photos.
package s3util

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
)

// RequiredTermsMetadataKey is the user-metadata key carrying the JSON
// array of required terms. Clients send it as x-amz-meta-requiredlist.
const RequiredTermsMetadataKey = "requiredlist"

// MaxImageBytes caps fetched images at the Gemini inline-data limit.
const MaxImageBytes = 20 << 20

type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectReader reads upload metadata and bytes.
type ObjectReader struct {
	client objectAPI
}

func NewObjectReader(client objectAPI) *ObjectReader {
	return &ObjectReader{client: client}
}

// RequiredTerms returns the lowercased required terms attached to the
// upload. Missing or malformed metadata yields an empty slice together
// with labels.ErrMetadataMissing or labels.ErrMetadataUnparsable; callers
// treat those as degraded input rather than failures. Any other error is a
// storage failure.
func (r *ObjectReader) RequiredTerms(ctx context.Context, ref hunt.UploadReference) ([]string, error) {
	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.ContainerID),
		Key:    aws.String(ref.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 HeadObject %s: %w", ref.ObjectKey, err)
	}
	return labels.ParseRequiredTerms(metadataValue(out.Metadata, RequiredTermsMetadataKey))
}

// FetchImage downloads the photo for model backends that need inline
// bytes. The MIME type comes from the object, falling back to the key's
// extension.
func (r *ObjectReader) FetchImage(ctx context.Context, ref hunt.UploadReference) ([]byte, string, error) {
	log.Debug().Str("bucket", ref.ContainerID).Str("key", ref.ObjectKey).Msg("Fetching image from S3")
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.ContainerID),
		Key:    aws.String(ref.ObjectKey),
	})
	if err != nil {
		return nil, "", fmt.Errorf("S3 GetObject %s: %w", ref.ObjectKey, err)
	}
	defer out.Body.Close()

	if size := aws.ToInt64(out.ContentLength); size > MaxImageBytes {
		return nil, "", fmt.Errorf("image %s is %d bytes, limit %d: %w", ref.ObjectKey, size, MaxImageBytes, hunt.ErrImageRejected)
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", ref.ObjectKey, err)
	}
	if len(data) > MaxImageBytes {
		return nil, "", fmt.Errorf("image %s exceeds %d bytes: %w", ref.ObjectKey, MaxImageBytes, hunt.ErrImageRejected)
	}

	mimeType := aws.ToString(out.ContentType)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = ImageContentType(ref.Ext())
	}
	return data, mimeType, nil
}

// metadataValue looks a key up case-insensitively; S3 lowercases
// user-metadata keys but other producers may not.
func metadataValue(md map[string]string, key string) string {
	if v, ok := md[key]; ok {
		return v
	}
	for k, v := range md {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
