package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Postgres stores readings in a relational database. It only implements the
// insert side of the schema; migrations live with the backend that owns the
// tables.
type Postgres struct {
	db     *sql.DB
	logger *logrus.Logger
}

// OpenPostgres opens a connection pool and verifies it with a ping.
func OpenPostgres(dsn string, logger *logrus.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgres(db, logger), nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB, logger *logrus.Logger) *Postgres {
	if logger == nil {
		logger = logrus.New()
	}
	return &Postgres{db: db, logger: logger}
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) RecordIMUData(ctx context.Context, deviceID string, sensorID int, timestamp int64, x, y, z float64) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO imu_data (device_id, sensor_id, device_timestamp, x, y, z)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		deviceID, sensorID, timestamp, x, y, z)
	if err != nil {
		return fmt.Errorf("insert imu data: %w", err)
	}
	return nil
}

func (p *Postgres) RecordAccelerometerData(ctx context.Context, s AccelerometerSample) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO accelerometer_data (device_id, sensor_id, device_timestamp, x, y, z, magnitude, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.DeviceID, s.SensorID, s.Timestamp, s.X, s.Y, s.Z, s.Magnitude, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert accelerometer data: %w", err)
	}
	return nil
}

func (p *Postgres) RecordTemperatureData(ctx context.Context, s TemperatureSample) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO temperature_data (device_id, sensor_id, device_timestamp, celsius, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.DeviceID, s.SensorID, s.Timestamp, s.Celsius, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert temperature data: %w", err)
	}
	return nil
}

func (p *Postgres) RecordForceData(ctx context.Context, deviceID string, sensorID int, timestamp int64, force int) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO force_data (device_id, sensor_id, device_timestamp, force)
		 VALUES ($1, $2, $3, $4)`,
		deviceID, sensorID, timestamp, force)
	if err != nil {
		return fmt.Errorf("insert force data: %w", err)
	}
	return nil
}

func (p *Postgres) RecordHeartRateData(ctx context.Context, s HeartRateSample) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO heart_rate_data (device_id, timestamp, heart_rate, created_at)
		 VALUES ($1, $2, $3, $4)`,
		s.DeviceID, s.Timestamp, s.HeartRate, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert heart rate data: %w", err)
	}
	return nil
}

func (p *Postgres) RecordImpactEvent(ctx context.Context, e ImpactEvent) error {
	var athleteID sql.NullString
	if e.AthleteID != "" {
		athleteID = sql.NullString{String: e.AthleteID, Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO impact_events (device_id, athlete_id, device_timestamp, magnitude, x, y, z, severity, processed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.DeviceID, athleteID, e.Timestamp, e.Magnitude, e.X, e.Y, e.Z, e.Severity, e.Processed, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert impact event: %w", err)
	}
	return nil
}
