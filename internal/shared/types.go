package shared

import (
	"math"
	"time"
)

// shared types across the application
// 1st: world-space geometry used by the engine, track and progress packages
// 2nd: style/camera payloads carried from controller commands to the engine
// 3rd: progress snapshots fanned out to the recorder and the admin API

// Vec3 is a world-space vector. Y is up; the ground plane is X/Z.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }
func (v Vec3) Magnitude() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) DistanceTo(o Vec3) float64 { return v.Sub(o).Magnitude() }

// Transform is a car pose. Yaw is in degrees, clockwise from +Z.
type Transform struct {
	Position Vec3    `json:"position"`
	YawDeg   float64 `json:"yaw_deg"`
}

// CarStyle is the visual configuration a controller may request.
type CarStyle struct {
	BodyStyle string `json:"body_style"`
	R         int    `json:"body_r"`
	G         int    `json:"body_g"`
	B         int    `json:"body_b"`
	CarName   string `json:"car_name"`
	FontSize  int    `json:"font_size"`
}

// CameraConfig is the sensor configuration a controller may request.
type CameraConfig struct {
	FOV      float64 `json:"fov" yaml:"fov"`
	OffsetX  float64 `json:"offset_x" yaml:"offset_x"`
	OffsetY  float64 `json:"offset_y" yaml:"offset_y"`
	OffsetZ  float64 `json:"offset_z" yaml:"offset_z"`
	RotX     float64 `json:"rot_x" yaml:"rot_x"`
	ImgW     int     `json:"img_w" yaml:"img_w"`
	ImgH     int     `json:"img_h" yaml:"img_h"`
	ImgD     int     `json:"img_d" yaml:"img_d"`
	ImgEnc   string  `json:"img_enc" yaml:"img_enc"`
	FishEyeX float64 `json:"fish_eye_x" yaml:"fish_eye_x"`
	FishEyeY float64 `json:"fish_eye_y" yaml:"fish_eye_y"`
}

// ProgressSnapshot is one telemetry sample reduced to what operators and
// the episode store care about (no image).
type ProgressSnapshot struct {
	SessionID  string    `json:"session_id"`
	Lap        int       `json:"lap"`
	Sector     int       `json:"sector"`
	MaxSector  int       `json:"max_sector"`
	CTE        float64   `json:"cte"`
	Done       bool      `json:"done"`
	HasPath    bool      `json:"has_path"`
	Speed      float64   `json:"speed"`
	Position   Vec3      `json:"position"`
	Hit        string    `json:"hit"`
	SimTime    float64   `json:"sim_time"`
	RecordedAt time.Time `json:"recorded_at"`
}
