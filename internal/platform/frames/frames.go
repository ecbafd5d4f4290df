// Package frames renders text slides as PNG images for generated videos.
package frames

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image/color"
	"os"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
)

var (
	defaultBackground = color.NRGBA{R: 0x10, G: 0x18, B: 0x20, A: 0xFF}
	defaultForeground = color.NRGBA{R: 0xF5, G: 0xF5, B: 0xF5, A: 0xFF}
)

// Renderer draws centered, word-wrapped text with an optional caption
// strip along the bottom edge.
type Renderer struct {
	body    *truetype.Font
	caption *truetype.Font

	mu    sync.Mutex
	faces map[string]font.Face

	// truetype faces cache glyphs internally; drawing holds drawMu.
	drawMu sync.Mutex
}

// New loads fontPath when set and falls back to the bundled Go fonts.
func New(fontPath string) (*Renderer, error) {
	bodyTTF := goregular.TTF
	if strings.TrimSpace(fontPath) != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		bodyTTF = b
	}
	body, err := truetype.Parse(bodyTTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	caption, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse caption TTF: %w", err)
	}
	return &Renderer{body: body, caption: caption, faces: map[string]font.Face{}}, nil
}

func (r *Renderer) face(f *truetype.Font, name string, size float64) font.Face {
	key := fmt.Sprintf("%s/%.1f", name, size)
	r.mu.Lock()
	defer r.mu.Unlock()
	if fc, ok := r.faces[key]; ok {
		return fc
	}
	fc := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
	r.faces[key] = fc
	return fc
}

func (r *Renderer) RenderFrame(text string, style adapters.FrameStyle) ([]byte, error) {
	w, h := style.Width, style.Height
	if w <= 0 || h <= 0 {
		w, h = defaultWidth, defaultHeight
	}
	bg := parseColor(style.Background, defaultBackground)
	fg := parseColor(style.Foreground, defaultForeground)

	r.drawMu.Lock()
	dc := gg.NewContext(w, h)
	dc.SetColor(bg)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	dc.Fill()

	bodySize := float64(h) / 14
	margin := float64(w) * 0.08
	dc.SetColor(fg)
	dc.SetFontFace(r.face(r.body, "body", bodySize))
	dc.DrawStringWrapped(strings.TrimSpace(text), float64(w)/2, float64(h)/2, 0.5, 0.5, float64(w)-2*margin, 1.4, gg.AlignCenter)

	if c := strings.TrimSpace(style.Caption); c != "" {
		strip := float64(h) * 0.12
		dc.SetColor(color.NRGBA{A: 0x99})
		dc.DrawRectangle(0, float64(h)-strip, float64(w), strip)
		dc.Fill()
		dc.SetColor(fg)
		dc.SetFontFace(r.face(r.caption, "caption", strip*0.4))
		dc.DrawStringAnchored(c, float64(w)/2, float64(h)-strip/2, 0.5, 0.35)
	}
	r.drawMu.Unlock()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func parseColor(s string, def color.NRGBA) color.NRGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return def
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		return def
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xFF}
}
