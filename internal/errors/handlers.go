package errors

import (
	stderrors "errors"

	"go.uber.org/zap"
)

// Log writes err to log at a level chosen by its severity. Errors that are not
// AppErrors are logged at error level.
func Log(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		log.Error(msg, append(fields, zap.Error(err))...)
		return
	}

	fields = append(fields,
		zap.String("error_type", string(appErr.Type)),
		zap.String("error_code", appErr.Code),
		zap.String("severity", string(appErr.Severity)),
	)
	if appErr.Details != "" {
		fields = append(fields, zap.String("details", appErr.Details))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.Error(appErr.Cause))
	}
	if appErr.Severity == SeverityCritical {
		fields = append(fields, zap.String("stack_trace", appErr.StackTrace))
	}

	switch appErr.Severity {
	case SeverityLow:
		log.Info(msg, fields...)
	case SeverityMedium:
		log.Warn(msg, fields...)
	default:
		log.Error(msg, fields...)
	}
}
