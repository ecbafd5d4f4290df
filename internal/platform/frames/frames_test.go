package frames

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

func TestRenderFrameSizeAndBackground(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := r.RenderFrame("Photosynthesis turns light into chemical energy.", adapters.FrameStyle{
		Width: 320, Height: 180, Background: "#336699", Caption: "Scene 1",
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 180 {
		t.Fatalf("bounds: want=320x180 got=%v", b)
	}
	got := color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA)
	if got.R != 0x33 || got.G != 0x66 || got.B != 0x99 {
		t.Fatalf("background: got=%+v", got)
	}
}

func TestRenderFrameDefaults(t *testing.T) {
	r, _ := New("")
	raw, err := r.RenderFrame("", adapters.FrameStyle{Background: "nope"})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil || cfg.Width != defaultWidth || cfg.Height != defaultHeight {
		t.Fatalf("config: %+v err=%v", cfg, err)
	}
}

func TestMissingFontFile(t *testing.T) {
	if _, err := New("/nonexistent/font.ttf"); err == nil {
		t.Fatalf("want error for missing font")
	}
}
