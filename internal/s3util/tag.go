package s3util

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Tag values applied to processed uploads.
const (
	ProjectTagValue = "scavenger-hunt"
	ResultMatch     = "match"
	ResultNoMatch   = "nomatch"
)

type taggingAPI interface {
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
}

// TagResult records the verification outcome on the uploaded photo.
// Browser uploads go through presigned URLs and cannot be tagged at
// creation time, so the tag is applied once the photo has been analyzed.
func TagResult(ctx context.Context, client taggingAPI, bucket, key string, isMatch bool) error {
	result := ResultNoMatch
	if isMatch {
		result = ResultMatch
	}
	_, err := client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: &bucket,
		Key:    &key,
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{
				{Key: aws.String("Project"), Value: aws.String(ProjectTagValue)},
				{Key: aws.String("HuntResult"), Value: aws.String(result)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("PutObjectTagging: %w", err)
	}
	return nil
}
