package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/golang/freetype"
	"golang.org/x/image/font"

	"github.com/StoicSim/brainwave/internal/calibration"
	"github.com/StoicSim/brainwave/internal/dsp"
)

const (
	plotWidth  = 900
	plotHeight = 450

	topBorder    = 40
	leftBorder   = 80
	bottomBorder = 50
	rightBorder  = 40

	plotMaxHz   = 30.0 // EEG features of interest all sit below 30 Hz
	tickStepHz  = 5.0
	dpi         = 96.0
	labelSize   = 12.0
	tickMarkLen = 5
)

var (
	restColor   = color.RGBA{0x1f, 0x77, 0xb4, 0xff}
	taskColor   = color.RGBA{0xd6, 0x27, 0x28, 0xff}
	markerColor = color.RGBA{0x2c, 0xa0, 0x2c, 0xff}
	gridColor   = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
)

// renderSpectra writes a PNG comparing the rest and task power spectra up to
// 30 Hz, with a vertical marker at the selected alpha frequency. Text labels
// require a TTF font; without one only the geometry is drawn.
func renderSpectra(path, fontPath string, rest, task *dsp.PowerSpectrum, result *calibration.Result) (err error) {
	fullWidth := plotWidth + leftBorder + rightBorder
	fullHeight := plotHeight + topBorder + bottomBorder
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	maxPower := plotCeiling(rest, task)

	drawGrid(img)
	drawCurve(img, rest, maxPower, restColor)
	drawCurve(img, task, maxPower, taskColor)
	drawMarker(img, result.FrequencyHz)

	if fontPath != "" {
		if err = drawLabels(img, fontPath, result); err != nil {
			return fmt.Errorf("drawing labels: %w", err)
		}
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	return png.Encode(out, img)
}

// plotCeiling returns the largest power value below plotMaxHz across both
// spectra, so the two curves share one vertical scale.
func plotCeiling(rest, task *dsp.PowerSpectrum) float64 {
	ceiling := 0.0
	for _, spectrum := range []*dsp.PowerSpectrum{rest, task} {
		for i, hz := range spectrum.Frequencies {
			if hz > plotMaxHz {
				break
			}
			if spectrum.Power[i] > ceiling {
				ceiling = spectrum.Power[i]
			}
		}
	}
	if ceiling == 0 {
		ceiling = 1
	}
	return ceiling
}

func plotX(hz float64) int {
	return leftBorder + int(hz/plotMaxHz*float64(plotWidth))
}

func plotY(power, maxPower float64) int {
	norm := power / maxPower
	if norm > 1 {
		norm = 1
	}
	return topBorder + plotHeight - int(norm*float64(plotHeight))
}

func drawGrid(img *image.RGBA) {
	for hz := 0.0; hz <= plotMaxHz; hz += tickStepHz {
		x := plotX(hz)
		for y := topBorder; y <= topBorder+plotHeight; y++ {
			img.Set(x, y, gridColor)
		}
		for y := topBorder + plotHeight; y < topBorder+plotHeight+tickMarkLen; y++ {
			img.Set(x, y, color.Black)
		}
	}

	// axes
	for x := leftBorder; x <= leftBorder+plotWidth; x++ {
		img.Set(x, topBorder+plotHeight, color.Black)
	}
	for y := topBorder; y <= topBorder+plotHeight; y++ {
		img.Set(leftBorder, y, color.Black)
	}
}

func drawCurve(img *image.RGBA, spectrum *dsp.PowerSpectrum, maxPower float64, c color.Color) {
	prevX, prevY := -1, -1
	for i, hz := range spectrum.Frequencies {
		if hz > plotMaxHz {
			break
		}
		x, y := plotX(hz), plotY(spectrum.Power[i], maxPower)
		if prevX >= 0 {
			drawSegment(img, prevX, prevY, x, y, c)
		}
		prevX, prevY = x, y
	}
}

// drawSegment draws a straight line between two plot points. Spectra are
// monotonic in x, so stepping per-column is enough.
func drawSegment(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	if x1 == x0 {
		for y := min(y0, y1); y <= max(y0, y1); y++ {
			img.Set(x0, y, c)
		}
		return
	}
	for x := x0; x <= x1; x++ {
		t := float64(x-x0) / float64(x1-x0)
		y := y0 + int(math.Round(t*float64(y1-y0)))
		img.Set(x, y, c)
	}
}

func drawMarker(img *image.RGBA, freqHz float64) {
	x := plotX(freqHz)
	for y := topBorder; y <= topBorder+plotHeight; y++ {
		if y%4 < 2 { // dashed
			img.Set(x, y, markerColor)
		}
	}
}

func drawLabels(img *image.RGBA, fontPath string, result *calibration.Result) error {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return fmt.Errorf("reading font: %w", err)
	}
	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(labelSize)
	ctx.SetHinting(font.HintingFull)
	ctx.SetSrc(image.Black)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	// frequency scale
	for hz := 0.0; hz <= plotMaxHz; hz += tickStepHz {
		label := fmt.Sprintf("%.0f Hz", hz)
		pt := freetype.Pt(plotX(hz)-12, topBorder+plotHeight+tickMarkLen+14)
		if _, err = ctx.DrawString(label, pt); err != nil {
			return err
		}
	}

	info := fmt.Sprintf("IAF: %.1f Hz   desynchronization: %.1f   rest (blue) vs task (red)",
		result.FrequencyHz, result.Desynchronization)
	if _, err = ctx.DrawString(info, freetype.Pt(leftBorder, topBorder-12)); err != nil {
		return err
	}
	return nil
}
