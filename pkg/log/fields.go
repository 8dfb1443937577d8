package log

import "time"

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// F builds a Field from an arbitrary value.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Str builds a string Field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 builds an int64 Field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Dur builds a duration Field.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Time builds a time Field.
func Time(key string, value time.Time) Field { return Field{Key: key, Value: value} }

// Err builds the conventional "error" Field.
func Err(err error) Field { return Field{Key: "error", Value: err} }
