package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/linuxmatters/jivescope/internal/audio"
	"github.com/linuxmatters/jivescope/internal/config"
)

// Lane colours, matching the terminal meter
var (
	bassColor  = color.RGBA{R: 0xDC, G: 0x14, B: 0x3C, A: 255} // Crimson
	midColor   = color.RGBA{R: 0xFF, G: 0x8C, B: 0x00, A: 255} // Deep orange
	highColor  = color.RGBA{R: 0xFF, G: 0xD7, B: 0x00, A: 255} // Bright yellow
	textColor  = color.RGBA{R: 0xF5, G: 0xDE, B: 0xB3, A: 255} // Wheat
	laneColor  = color.RGBA{R: 0x1A, G: 0x1A, B: 0x1A, A: 255}
	background = color.RGBA{A: 255}
)

// Chart draws a BandProfile as three stacked lanes (bass, mid, high) with
// time running left to right
type Chart struct {
	img      *image.RGBA
	face     font.Face
	width    int
	height   int
	plotTop  int
	laneH    int
	plotLeft int
	plotW    int

	// alphaTable fades each column from bright at the lane floor to dim at
	// its tip
	alphaTable []uint8
}

// LoadFace parses the bundled Go Regular font at size points
func LoadFace(size float64) (font.Face, error) {
	parsed, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{Size: size, DPI: 72}), nil
}

// NewChart creates a chart canvas. face may be nil to skip all text.
func NewChart(width, height int, face font.Face) (*Chart, error) {
	headerH := 0
	labelW := 0
	if face != nil {
		headerH = face.Metrics().Height.Ceil() + config.ChartMargin/2
		labelW, _ = measureText(face, "High")
		labelW += config.ChartMargin / 2
	}

	plotTop := config.ChartMargin + headerH
	laneH := (height - plotTop - config.ChartMargin - 2*config.ChartLaneGap) / 3
	plotLeft := config.ChartMargin + labelW
	plotW := width - plotLeft - config.ChartMargin
	if laneH < 8 || plotW < 8 {
		return nil, fmt.Errorf("chart %dx%d is too small", width, height)
	}

	alphaTable := make([]uint8, laneH)
	for i := range alphaTable {
		distance := float64(i) / float64(laneH)
		alphaTable[i] = uint8((1.0 - distance*0.5) * 255)
	}

	return &Chart{
		img:        image.NewRGBA(image.Rect(0, 0, width, height)),
		face:       face,
		width:      width,
		height:     height,
		plotTop:    plotTop,
		laneH:      laneH,
		plotLeft:   plotLeft,
		plotW:      plotW,
		alphaTable: alphaTable,
	}, nil
}

// Image returns the canvas
func (c *Chart) Image() *image.RGBA {
	return c.img
}

// Draw renders profile onto the canvas under title
func (c *Chart) Draw(profile *audio.BandProfile, title string) error {
	if profile == nil || profile.NumFrames == 0 {
		return audio.ErrNoAudioData
	}

	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	lanes := []struct {
		name  string
		col   color.RGBA
		value func(audio.FrequencyBands) float64
	}{
		{"Bass", bassColor, func(b audio.FrequencyBands) float64 { return b.Bass }},
		{"Mid", midColor, func(b audio.FrequencyBands) float64 { return b.Mid }},
		{"High", highColor, func(b audio.FrequencyBands) float64 { return b.High }},
	}

	for i, lane := range lanes {
		top := c.plotTop + i*(c.laneH+config.ChartLaneGap)
		rect := image.Rect(c.plotLeft, top, c.plotLeft+c.plotW, top+c.laneH)
		draw.Draw(c.img, rect, image.NewUniform(laneColor), image.Point{}, draw.Src)

		// One pixel per frame, then resample to the plot width
		src := c.renderLane(profile.Frames, lane.col, lane.value)
		draw.BiLinear.Scale(c.img, rect, src, src.Bounds(), draw.Over, nil)

		if c.face != nil {
			c.drawText(lane.name, config.ChartMargin, top+c.laneH/2+c.face.Metrics().Ascent.Ceil()/2)
		}
	}

	if c.face != nil {
		header := fmt.Sprintf("%s  ·  %s  ·  %d fps", title, profile.Duration.Round(100*time.Millisecond), profile.FPS)
		c.drawText(header, c.plotLeft, config.ChartMargin+c.face.Metrics().Ascent.Ceil())
	}
	return nil
}

// renderLane draws one column per frame, scaled so 255 fills the lane
func (c *Chart) renderLane(frames []audio.BandFrame, col color.RGBA, value func(audio.FrequencyBands) float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, len(frames), c.laneH))

	for x, f := range frames {
		h := int(value(f.Bands) / 255 * float64(c.laneH))
		h = max(0, min(h, c.laneH))

		for i := 0; i < h; i++ {
			y := c.laneH - 1 - i
			alpha := c.alphaTable[i*c.laneH/max(h, 1)]
			offset := y*img.Stride + x*4
			img.Pix[offset] = uint8(uint16(col.R) * uint16(alpha) / 255)
			img.Pix[offset+1] = uint8(uint16(col.G) * uint16(alpha) / 255)
			img.Pix[offset+2] = uint8(uint16(col.B) * uint16(alpha) / 255)
			img.Pix[offset+3] = 255
		}
	}
	return img
}

func (c *Chart) drawText(text string, x, baselineY int) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(textColor),
		Face: c.face,
		Dot:  freetype.Pt(x, baselineY),
	}
	d.DrawString(text)
}

// measureText returns the width and actual bounds of rendered text
func measureText(face font.Face, text string) (int, fixed.Rectangle26_6) {
	d := &font.Drawer{Face: face}
	bounds, _ := d.BoundString(text)
	width := (bounds.Max.X - bounds.Min.X).Ceil()
	return width, bounds
}

// Encode writes the canvas as PNG
func (c *Chart) Encode(w io.Writer) error {
	return png.Encode(w, c.img)
}

// SaveBandChart renders profile at the configured chart size and writes it to
// outputPath as PNG
func SaveBandChart(outputPath string, profile *audio.BandProfile, title string) error {
	face, err := LoadFace(config.ChartFontSize)
	if err != nil {
		return err
	}
	defer face.Close()

	chart, err := NewChart(config.ChartWidth, config.ChartHeight, face)
	if err != nil {
		return err
	}
	if err := chart.Draw(profile, title); err != nil {
		return err
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := chart.Encode(outFile); err != nil {
		outFile.Close()
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return outFile.Close()
}
