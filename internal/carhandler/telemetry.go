package carhandler

import (
	"encoding/base64"
	"errors"

	"sdsim/internal/microservices/tcp"
	"sdsim/internal/progress"
)

// Telemetry field names.
const (
	FieldSteeringAngle = "steering_angle"
	FieldThrottle      = "throttle"
	FieldSpeed         = "speed"
	FieldImage         = "image"
	FieldHit           = "hit"
	FieldPosX          = "pos_x"
	FieldPosY          = "pos_y"
	FieldPosZ          = "pos_z"
	FieldTime          = "time"
	FieldLap           = "lap"
	FieldSector        = "sector"
	FieldCTE           = "cte"
	FieldDone          = "done"
	FieldMaxSector     = "maxSector"
)

// buildTelemetry samples the car and evaluates progress. The collision slot
// is cleared once read.
func (h *Handler) buildTelemetry() (tcp.Message, progress.Report) {
	tm := h.car.Transform()

	msg := tcp.NewMessage(MsgTelemetry).
		Set(FieldSteeringAngle, h.car.Steering()/h.opts.SteerToAngle).
		Set(FieldThrottle, h.car.Throttle()).
		Set(FieldSpeed, h.car.Velocity().Magnitude()).
		Set(FieldImage, h.captureImage()).
		Set(FieldHit, h.car.LastCollisionName())
	h.car.ClearLastCollision()

	msg = msg.
		Set(FieldPosX, tm.Position.X).
		Set(FieldPosY, tm.Position.Y).
		Set(FieldPosZ, tm.Position.Z).
		Set(FieldTime, h.scene.TimeSinceLevelLoad())

	report := h.tracker.Evaluate(tm.Position)
	msg = msg.
		Set(FieldLap, report.Lap).
		Set(FieldSector, report.Sector)
	if report.HasPath {
		msg = msg.
			Set(FieldCTE, report.CTE).
			Set(FieldDone, report.Done).
			Set(FieldMaxSector, report.MaxSector)
	}
	return msg, report
}

func (h *Handler) captureImage() string {
	if h.camera == nil {
		return ""
	}
	frame, err := h.camera.CaptureFrameBytes()
	if err != nil {
		h.logger.Warn("frame_capture_failed", "error", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(frame)
}

func (h *Handler) sendTelemetry() {
	msg, report := h.buildTelemetry()
	if err := h.session.Send(msg); err != nil {
		switch {
		case errors.Is(err, tcp.ErrClosed):
			h.logger.Debug("telemetry_dropped_session_closed")
		case errors.Is(err, tcp.ErrQueueFull):
			h.logger.Debug("telemetry_dropped_queue_full")
		default:
			h.logger.Warn("telemetry_send_failed", "error", err)
		}
		return
	}
	h.frames.Add(1)
	if h.observer != nil {
		h.observer.TelemetrySent(h.owner, msg, report)
	}
}
