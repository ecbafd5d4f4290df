package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const visionService = "vision"

// VisionOCR reads handwriting and printed text with DOCUMENT_TEXT_DETECTION.
// When Vision finds no text, or is not configured, Fallback is asked.
type VisionOCR struct {
	log      *logger.Logger
	client   *vision.ImageAnnotatorClient
	Fallback adapters.OCR
}

func NewVisionOCR(ctx context.Context, log *logger.Logger, enabled bool) (*VisionOCR, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	v := &VisionOCR{log: log.With("service", "gcp.Vision")}
	if !enabled {
		return v, nil
	}
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	v.client = c
	return v, nil
}

func (v *VisionOCR) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}

func (v *VisionOCR) ReadImage(ctx context.Context, blob adapters.Blob) (string, error) {
	if len(blob.Data) == 0 {
		return "", adapters.Errorf(visionService, adapters.InvalidResponse, "empty image")
	}
	if v.client == nil {
		if v.Fallback != nil {
			return v.Fallback.ReadImage(ctx, blob)
		}
		return "", adapters.Missing(visionService)
	}
	text, err := v.annotate(ctx, blob.Data)
	if err != nil {
		return "", err
	}
	if text == "" && v.Fallback != nil {
		v.log.Debug("Vision returned no text; using fallback OCR")
		return v.Fallback.ReadImage(ctx, blob)
	}
	return text, nil
}

func (v *VisionOCR) annotate(ctx context.Context, img []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", grpcError(visionService, err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", adapters.Errorf(visionService, adapters.InvalidResponse, "annotate: %s", r0.Error.Message)
	}
	return strings.TrimSpace(r0.GetFullTextAnnotation().GetText()), nil
}
