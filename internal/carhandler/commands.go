package carhandler

import (
	"sdsim/internal/microservices/tcp"
	"sdsim/internal/shared"
	"sdsim/internal/sim"
	"sdsim/internal/track"
)

// handlers run on the session receive goroutine; anything touching the
// engine beyond the control setters goes through the work queue

func (h *Handler) onControl(msg tcp.Message) {
	steering, err := msg.Float("steering")
	if err != nil {
		h.logger.Warn("control_parse_failed", "error", err.Error())
		return
	}
	throttle, err := msg.Float("throttle")
	if err != nil {
		h.logger.Warn("control_parse_failed", "error", err.Error())
		return
	}
	brake, err := msg.Float("brake")
	if err != nil {
		h.logger.Warn("control_parse_failed", "error", err.Error())
		return
	}

	steering *= h.opts.SteerToAngle
	h.controls.steering.Store(steering)
	h.controls.throttle.Store(throttle)
	h.controls.brake.Store(brake)

	h.car.RequestSteering(steering)
	h.car.RequestThrottle(throttle)
	h.car.RequestFootBrake(brake)
}

func (h *Handler) onExitScene(tcp.Message) {
	h.fire(EventRequestExit)
}

func (h *Handler) onResetCar(tcp.Message) {
	h.fire(EventRequestReset)
}

func (h *Handler) fire(ev Event) {
	if _, err := h.machine.Fire(ev); err != nil {
		h.logger.Debug("event_ignored", "event", ev.String(), "error", err.Error())
	}
}

// onNewCar spawns a car with no client attached: nothing will drive it.
func (h *Handler) onNewCar(tcp.Message) {
	h.logger.Warn("spawning_car_without_client")
	h.queue.Enqueue(h.owner, func() {
		if _, _, err := h.scene.SpawnCar(nil); err != nil {
			h.logger.Error("spawn_car_failed", "error", err)
		}
	})
}

func (h *Handler) onStepMode(msg tcp.Message) {
	mode, err := msg.String("step_mode")
	if err != nil {
		h.logger.Warn("step_mode_parse_failed", "error", err.Error())
		return
	}
	if mode != StepSync.String() {
		h.controls.mode.Store(int32(StepAsync))
		h.scene.SetTimeScale(1)
		h.logger.Info("step_mode_changed", "mode", StepAsync.String())
		return
	}

	step, err := msg.Float("time_step")
	if err != nil {
		h.logger.Warn("step_mode_parse_failed", "error", err.Error())
		return
	}
	h.controls.timeStep.Store(step)
	h.controls.mode.Store(int32(StepSync))
	h.scene.SetTimeScale(0)
	h.logger.Info("step_mode_changed", "mode", StepSync.String(), "time_step", step)
}

// sceneOwner tags queued work that must outlive the session that asked for
// it, so Destroy never discards it.
const sceneOwner = ""

func (h *Handler) onQuitApp(tcp.Message) {
	h.queue.Enqueue(sceneOwner, h.scene.Quit)
}

func (h *Handler) onRegenRoad(msg tcp.Message) {
	raw, err := msg.String("wayPoints")
	if err != nil {
		h.logger.Warn("regen_road_parse_failed", "error", err.Error())
		return
	}
	turnInc, err := msg.OptionalFloat("turn_increment", 0)
	if err != nil {
		h.logger.Warn("regen_road_parse_failed", "error", err.Error())
		return
	}
	waypoints := track.SplitWaypoints(raw)
	// a bad list is dropped here so the shared road is never torn down for it
	if len(waypoints) > 1 {
		if _, err := track.ParseWaypoints(waypoints); err != nil {
			h.logger.Warn("regen_road_parse_failed", "error", err.Error())
			return
		}
	}
	h.queue.Enqueue(h.owner, func() { h.regenRoad(turnInc, waypoints) })
}

// regenRoad runs on the simulation goroutine.
func (h *Handler) regenRoad(turnInc float64, waypoints []string) {
	if h.path == nil {
		h.logger.Warn("regen_road_without_path")
		return
	}
	if turnInc != 0 {
		h.path.SetTurnIncrement(turnInc)
	}

	h.car.RestorePosRot()
	if len(waypoints) > 1 {
		h.path.DestroyRoad()
		if err := h.path.BuildRoad(waypoints); err != nil {
			h.logger.Error("road_build_failed", "waypoints", len(waypoints), "error", err)
		} else {
			h.logger.Info("road_rebuilt", "waypoints", len(waypoints))
			if h.observer != nil {
				h.observer.RoadRebuilt(h.owner, h.path.Waypoints())
			}
		}
	}
	h.tracker.Reset()
	h.car.RequestFootBrake(1)
}

func (h *Handler) onCarConfig(msg tcp.Message) {
	var style shared.CarStyle
	var err error
	if style.BodyStyle, err = msg.String("body_style"); err != nil {
		h.logger.Warn("car_config_parse_failed", "error", err.Error())
		return
	}
	if style.R, err = msg.Int("body_r"); err != nil {
		h.logger.Warn("car_config_parse_failed", "error", err.Error())
		return
	}
	if style.G, err = msg.Int("body_g"); err != nil {
		h.logger.Warn("car_config_parse_failed", "error", err.Error())
		return
	}
	if style.B, err = msg.Int("body_b"); err != nil {
		h.logger.Warn("car_config_parse_failed", "error", err.Error())
		return
	}
	if style.CarName, err = msg.String("car_name"); err != nil {
		h.logger.Warn("car_config_parse_failed", "error", err.Error())
		return
	}
	if style.FontSize, err = msg.OptionalInt("font_size", 100); err != nil {
		h.logger.Warn("car_config_parse_failed", "error", err.Error())
		return
	}

	h.queue.Enqueue(h.owner, func() {
		s, ok := h.car.(sim.Stylable)
		if !ok {
			return
		}
		if err := s.SetStyle(style); err != nil {
			h.logger.Warn("car_style_rejected", "error", err)
		}
	})
}

func (h *Handler) onCamConfig(msg tcp.Message) {
	cfg, err := parseCamConfig(msg)
	if err != nil {
		h.logger.Warn("cam_config_parse_failed", "error", err.Error())
		return
	}
	h.queue.Enqueue(h.owner, func() {
		if h.camera == nil {
			return
		}
		if err := h.camera.Configure(cfg); err != nil {
			h.logger.Warn("camera_config_rejected", "error", err)
			return
		}
		if cfg.FishEyeX != 0 || cfg.FishEyeY != 0 {
			h.camera.EnableFisheye(cfg.FishEyeX, cfg.FishEyeY)
		}
	})
}

func parseCamConfig(msg tcp.Message) (shared.CameraConfig, error) {
	var cfg shared.CameraConfig
	floats := []struct {
		key string
		dst *float64
	}{
		{"fov", &cfg.FOV},
		{"offset_x", &cfg.OffsetX},
		{"offset_y", &cfg.OffsetY},
		{"offset_z", &cfg.OffsetZ},
		{"rot_x", &cfg.RotX},
	}
	for _, f := range floats {
		v, err := msg.Float(f.key)
		if err != nil {
			return cfg, err
		}
		*f.dst = v
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"img_w", &cfg.ImgW},
		{"img_h", &cfg.ImgH},
		{"img_d", &cfg.ImgD},
	}
	for _, f := range ints {
		v, err := msg.Int(f.key)
		if err != nil {
			return cfg, err
		}
		*f.dst = v
	}
	var err error
	if cfg.ImgEnc, err = msg.String("img_enc"); err != nil {
		return cfg, err
	}
	if cfg.FishEyeX, err = msg.OptionalFloat("fish_eye_x", 0); err != nil {
		return cfg, err
	}
	if cfg.FishEyeY, err = msg.OptionalFloat("fish_eye_y", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// onDisconnect is exit_scene, then closing the session, then quit_app. The
// exit is queued, not flagged: closing the session destroys this handler
// before its next Update.
func (h *Handler) onDisconnect(msg tcp.Message) {
	h.queue.Enqueue(sceneOwner, h.scene.ExitScene)
	h.logger.Info("client_requested_disconnect")
	h.session.Disconnect()
	h.onQuitApp(msg)
}
