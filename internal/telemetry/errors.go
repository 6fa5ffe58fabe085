package telemetry

import "codeberg.org/werrin/pithermd/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("telemetry_invalid_db_path")

	// Recording Errors
	ErrInvalidEvent = errors.ErrorCode("telemetry_invalid_event")
	ErrRecordFailed = errors.ErrorCode("telemetry_record_failed")
	ErrEncodeFailed = errors.ErrorCode("telemetry_encode_failed")

	// Storage Errors
	ErrStorageInit       = errors.ErrorCode("telemetry_storage_init_failed")
	ErrStorageClose      = errors.ErrorCode("telemetry_storage_close_failed")
	ErrSchemaInitFailed  = errors.ErrorCode("telemetry_schema_init_failed")
	ErrTransactionFailed = errors.ErrorCode("telemetry_transaction_failed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrorCode("telemetry_operation_timeout")
	ErrServiceShutdown  = errors.ErrorCode("telemetry_service_shutdown_failed")
)
