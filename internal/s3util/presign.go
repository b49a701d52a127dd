package s3util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
)

// UploadURLExpiry is how long a presigned upload URL stays valid.
const UploadURLExpiry = 15 * time.Minute

// MaxUploadBytes is the largest photo accepted for upload, the Rekognition
// limit for images read from S3.
const MaxUploadBytes = 15 << 20

// ErrUploadTooLarge means the declared upload size exceeds MaxUploadBytes.
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

var imageContentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"heic": "image/heic",
}

// ImageContentType maps an allowed extension (no dot, lowercase) to its
// MIME type. Unknown extensions return "".
func ImageContentType(ext string) string {
	return imageContentTypes[ext]
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PresignedUpload is returned to the browser. Every header in Headers
// must be sent with the PUT or the signature check fails.
type PresignedUpload struct {
	URL     string            `json:"uploadUrl"`
	Method  string            `json:"method"`
	Key     string            `json:"key"`
	Headers map[string]string `json:"headers"`
}

// PresignUpload signs a PUT for key that carries the required terms as
// object metadata, so the analyzer can read them back from the stored
// object. A positive size is signed as Content-Length, so S3 refuses a body
// of any other length; size 0 leaves the length unsigned.
func PresignUpload(ctx context.Context, client presignAPI, bucket, key, contentType string, size int64, requiredTerms []string) (*PresignedUpload, error) {
	if size > MaxUploadBytes {
		return nil, fmt.Errorf("%d bytes, limit %d: %w", size, MaxUploadBytes, ErrUploadTooLarge)
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			RequiredTermsMetadataKey: labels.EncodeRequiredTerms(requiredTerms),
		},
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	req, err := client.PresignPutObject(ctx, in, func(opts *s3.PresignOptions) {
		opts.Expires = UploadURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("presign PutObject: %w", err)
	}
	return &PresignedUpload{
		URL:     req.URL,
		Method:  req.Method,
		Key:     key,
		Headers: flattenHeaders(req.SignedHeader),
	}, nil
}

// flattenHeaders drops Host, which the browser sets itself.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if http.CanonicalHeaderKey(k) == "Host" || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}
