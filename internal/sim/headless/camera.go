package headless

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strings"
	"sync"

	"sdsim/internal/shared"
)

const maxImageSide = 1024

func DefaultCameraConfig() shared.CameraConfig {
	return shared.CameraConfig{
		FOV:    60,
		ImgW:   160,
		ImgH:   120,
		ImgD:   3,
		ImgEnc: "JPG",
	}
}

// Camera renders a synthetic frame: a sky and ground split at a horizon that
// shifts with the car heading, so consecutive frames differ while driving.
type Camera struct {
	mu       sync.Mutex
	car      *Car
	cfg      shared.CameraConfig
	fisheye  bool
	fishEyeX float64
	fishEyeY float64
}

func newCamera(car *Car, cfg shared.CameraConfig) *Camera {
	return &Camera{car: car, cfg: cfg}
}

// Config returns the active configuration.
func (c *Camera) Config() shared.CameraConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Fisheye reports whether lens distortion is on, and its strengths.
func (c *Camera) Fisheye() (bool, float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fisheye, c.fishEyeX, c.fishEyeY
}

func (c *Camera) Configure(cfg shared.CameraConfig) error {
	if cfg.ImgW <= 0 || cfg.ImgH <= 0 || cfg.ImgW > maxImageSide || cfg.ImgH > maxImageSide {
		return fmt.Errorf("invalid image size %dx%d", cfg.ImgW, cfg.ImgH)
	}
	switch cfg.ImgD {
	case 1, 3, 4:
	default:
		return fmt.Errorf("invalid image depth %d", cfg.ImgD)
	}
	if _, err := encoderFor(cfg.ImgEnc); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

func (c *Camera) EnableFisheye(x, y float64) {
	c.mu.Lock()
	c.fisheye = true
	c.fishEyeX, c.fishEyeY = x, y
	c.mu.Unlock()
}

func (c *Camera) CaptureFrameBytes() ([]byte, error) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	yaw := 0.0
	if c.car != nil {
		yaw = c.car.Transform().YawDeg
	}
	img := render(cfg, yaw)

	enc, err := encoderFor(cfg.ImgEnc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := enc(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

type encodeFunc func(*bytes.Buffer, image.Image) error

func encoderFor(name string) (encodeFunc, error) {
	switch strings.ToUpper(name) {
	case "", "JPG", "JPEG":
		return func(b *bytes.Buffer, img image.Image) error {
			return jpeg.Encode(b, img, &jpeg.Options{Quality: 75})
		}, nil
	case "PNG":
		return func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) }, nil
	default:
		return nil, fmt.Errorf("unsupported image encoding %q", name)
	}
}

func render(cfg shared.CameraConfig, yawDeg float64) image.Image {
	rect := image.Rect(0, 0, cfg.ImgW, cfg.ImgH)
	horizon := cfg.ImgH / 2
	tilt := math.Sin(yawDeg*math.Pi/180) * float64(cfg.ImgH) / 8

	sky := color.RGBA{R: 135, G: 185, B: 235, A: 255}
	ground := color.RGBA{R: 90, G: 90, B: 90, A: 255}

	var img interface {
		image.Image
		Set(x, y int, c color.Color)
	}
	if cfg.ImgD == 1 {
		img = image.NewGray(rect)
	} else {
		img = image.NewRGBA(rect)
	}
	for x := 0; x < cfg.ImgW; x++ {
		h := horizon + int(tilt*(float64(x)/float64(cfg.ImgW)-0.5))
		for y := 0; y < cfg.ImgH; y++ {
			if y < h {
				img.Set(x, y, sky)
			} else {
				img.Set(x, y, ground)
			}
		}
	}
	return img
}
