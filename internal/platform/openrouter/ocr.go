package openrouter

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

const ocrPrompt = "Transcribe all handwritten and printed text in this image exactly as written. Preserve line breaks. Reply with the transcription only."

// OCR transcribes images with the vision model. It serves as the fallback
// behind Cloud Vision.
type OCR struct {
	llm adapters.Completion
}

func NewOCR(llm adapters.Completion) *OCR { return &OCR{llm: llm} }

func (o *OCR) ReadImage(ctx context.Context, blob adapters.Blob) (string, error) {
	ct := blob.ContentType
	if ct == "" || !strings.HasPrefix(ct, "image/") {
		ct = http.DetectContentType(blob.Data)
	}
	uri := "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(blob.Data)
	text, err := o.llm.Complete(ctx, []adapters.Message{{Role: "user", Content: ocrPrompt, Images: []string{uri}}}, adapters.HintVision, adapters.CompletionOptions{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
