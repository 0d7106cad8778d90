package models

import "time"

// EpisodeRecord is one telemetry sample in the episode log.
type EpisodeRecord struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement" db:"id"`
	SessionID  string    `json:"session_id" gorm:"column:session_id;not null;index:idx_episode_session_time,priority:1" db:"session_id"`
	Lap        int       `json:"lap" gorm:"column:lap;not null;default:0" db:"lap"`
	Sector     int       `json:"sector" gorm:"column:sector;not null;default:0" db:"sector"`
	MaxSector  int       `json:"max_sector" gorm:"column:max_sector;not null;default:0" db:"max_sector"`
	CTE        float64   `json:"cte" gorm:"column:cte;not null;default:0" db:"cte"`
	Done       bool      `json:"done" gorm:"column:done;not null;default:false" db:"done"`
	HasPath    bool      `json:"has_path" gorm:"column:has_path;not null;default:false" db:"has_path"`
	Speed      float64   `json:"speed" gorm:"column:speed;not null;default:0" db:"speed"`
	PosX       float64   `json:"pos_x" gorm:"column:pos_x" db:"pos_x"`
	PosY       float64   `json:"pos_y" gorm:"column:pos_y" db:"pos_y"`
	PosZ       float64   `json:"pos_z" gorm:"column:pos_z" db:"pos_z"`
	Hit        string    `json:"hit" gorm:"column:hit;size:128" db:"hit"`
	SimTime    float64   `json:"sim_time" gorm:"column:sim_time" db:"sim_time"`
	RecordedAt time.Time `json:"recorded_at" gorm:"column:recorded_at;not null;index:idx_episode_session_time,priority:2" db:"recorded_at"`
}

func (EpisodeRecord) TableName() string {
	return "episode_records"
}
