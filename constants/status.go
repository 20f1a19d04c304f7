package constants

// ConversionStatus is the canonical status for rows in the conversion log.
type ConversionStatus string

// Stable values (store these exact strings in DB).
const (
	ConversionRunning   ConversionStatus = "RUNNING"
	ConversionSucceeded ConversionStatus = "SUCCEEDED"
	ConversionFailed    ConversionStatus = "FAILED"
)

// SourceText marks conversions that started from raw text instead of a document.
const SourceText = "text"

// MB is used for the upload limits in config.
const MB = 1 << 20
