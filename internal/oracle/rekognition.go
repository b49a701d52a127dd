package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
)

// rekognitionAPI is the subset of the Rekognition client used here.
type rekognitionAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// RekognitionDetector reads the image straight from the upload bucket.
type RekognitionDetector struct {
	client rekognitionAPI
}

var _ Detector = (*RekognitionDetector)(nil)

func NewRekognitionDetector(client rekognitionAPI) *RekognitionDetector {
	return &RekognitionDetector{client: client}
}

func (d *RekognitionDetector) Name() string { return BackendRekognition }

func (d *RekognitionDetector) DetectLabels(ctx context.Context, ref hunt.UploadReference) ([]labels.Detected, error) {
	start := time.Now()
	out, err := d.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(ref.ContainerID),
				Name:   aws.String(ref.ObjectKey),
			},
		},
		MaxLabels:     aws.Int32(labels.MaxLabels),
		MinConfidence: aws.Float32(labels.MinConfidence),
	})
	if err != nil {
		var tooLarge *rektypes.ImageTooLargeException
		var badFormat *rektypes.InvalidImageFormatException
		if errors.As(err, &tooLarge) || errors.As(err, &badFormat) {
			return nil, fmt.Errorf("rekognition DetectLabels %s: %w: %v", ref.ObjectKey, hunt.ErrImageRejected, err)
		}
		return nil, fmt.Errorf("rekognition DetectLabels %s: %w", ref.ObjectKey, err)
	}

	detected := make([]labels.Detected, 0, len(out.Labels))
	for _, l := range out.Labels {
		if l.Name == nil {
			continue
		}
		detected = append(detected, labels.Detected{
			Name:       aws.ToString(l.Name),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
		})
	}
	log.Debug().
		Str("imageKey", ref.ObjectKey).
		Int("labels", len(detected)).
		Dur("elapsed", time.Since(start)).
		Msg("Rekognition labels detected")
	return detected, nil
}
