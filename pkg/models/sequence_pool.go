package models

import "time"

// SequencePool is a bounded range of fixed-width decimal values drained one at
// a time. CurrentNext is the next value to hand out.
type SequencePool struct {
	ID          int64     `db:"id"           json:"id"`
	StartValue  string    `db:"start_value"  json:"start_value"`
	EndValue    string    `db:"end_value"    json:"end_value"`
	CurrentNext string    `db:"current_next" json:"current_next"`
	IsExhausted bool      `db:"is_exhausted" json:"is_exhausted"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
