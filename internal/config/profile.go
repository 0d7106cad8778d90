package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sdsim/internal/shared"
	"sdsim/internal/sim/headless"
	"sdsim/internal/track"
)

// Profile describes the headless engine: car constants, the default camera
// and the road it starts on.
type Profile struct {
	Vehicle headless.VehicleParams `yaml:"vehicle"`
	Camera  shared.CameraConfig    `yaml:"camera"`
	Track   track.LoopOptions      `yaml:"track"`

	// Waypoints replace the generated loop when there are at least two.
	Waypoints []string `yaml:"waypoints"`
	// WaypointsFile is read when Waypoints is empty, one "x,y,z" per line.
	WaypointsFile string `yaml:"waypoints_file"`
}

func DefaultProfile() Profile {
	return Profile{
		Vehicle: headless.DefaultVehicleParams(),
		Camera:  headless.DefaultCameraConfig(),
		Track:   track.DefaultLoopOptions(),
	}
}

// LoadProfile overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if len(p.Waypoints) == 0 && p.WaypointsFile != "" {
		f, err := os.Open(p.WaypointsFile)
		if err != nil {
			return p, fmt.Errorf("failed to open waypoints file: %w", err)
		}
		defer f.Close()
		if p.Waypoints, err = track.ReadWaypoints(f); err != nil {
			return p, fmt.Errorf("failed to read waypoints file: %w", err)
		}
	}
	if _, err := track.ParseWaypoints(p.Waypoints); err != nil {
		return p, fmt.Errorf("invalid profile waypoints: %w", err)
	}
	if p.Track.Spans < 3 {
		return p, fmt.Errorf("track.spans must be at least 3, got %d", p.Track.Spans)
	}
	return p, nil
}
