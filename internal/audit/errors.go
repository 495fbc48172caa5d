package audit

import "codeberg.org/mutker/argon1d/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("audit_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("audit_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("audit_schema_validation_failed")
	ErrTransactionFailed      = errors.ErrorCode("audit_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrorCode("audit_storage_init_failed")
	ErrStorageClose = errors.ErrShutdownFailed

	// Recording Errors
	ErrRecordFailed = errors.ErrorCode("audit_record_failed")
	ErrInvalidEntry = errors.ErrorCode("audit_invalid_entry")

	// Operation Errors
	ErrOperationCanceled = errors.ErrorCode("audit_operation_canceled")
)
