package sensors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists sensors and readings in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a sensor by id.
func (r *Repository) Get(ctx context.Context, id string) (Sensor, error) {
	var s Sensor
	err := r.pool.QueryRow(ctx, `
		SELECT id, warehouse, metric, min_value, max_value, COALESCE(alert_phone, ''), disabled, created_at
		FROM sensors WHERE id = $1`, id).
		Scan(&s.ID, &s.Warehouse, &s.Metric, &s.MinValue, &s.MaxValue, &s.AlertPhone, &s.Disabled, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sensor{}, fmt.Errorf("%w: %s", ErrUnknownSensor, id)
	}
	if err != nil {
		return Sensor{}, err
	}
	return s, nil
}

// InsertReading stores a reading and returns it with its id.
func (r *Repository) InsertReading(ctx context.Context, reading Reading) (Reading, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sensor_readings (sensor_id, value, at, breach)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		reading.SensorID, reading.Value, reading.At, reading.Breach).Scan(&reading.ID)
	if err != nil {
		return Reading{}, err
	}
	return reading, nil
}

// RecentReadings lists the latest readings for a sensor.
func (r *Repository) RecentReadings(ctx context.Context, sensorID string, limit int) ([]Reading, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, sensor_id, value, at, breach
		FROM sensor_readings WHERE sensor_id = $1
		ORDER BY at DESC LIMIT $2`, sensorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var reading Reading
		if err := rows.Scan(&reading.ID, &reading.SensorID, &reading.Value, &reading.At, &reading.Breach); err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}
