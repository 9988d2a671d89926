package errors

import "fmt"

// ClaimFormatError is returned when a claim document cannot be read or decoded.
type ClaimFormatError struct {
	Err  error
	File string
}

func (e *ClaimFormatError) Error() string {
	return fmt.Sprintf("invalid claim file %s: %s", e.File, e.Err)
}

func (e *ClaimFormatError) Unwrap() error {
	return e.Err
}

// ReferenceNotFoundError reports a missing row in one of the reference tables.
type ReferenceNotFoundError struct {
	Entity string
	Key    string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("no %s found for %s", e.Entity, e.Key)
}

// ConfigError reports a missing or invalid environment setting.
type ConfigError struct {
	Err error
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
