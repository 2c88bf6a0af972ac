package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error markers for the failure categories the pipeline reports.
// Handlers classify failures by wrapping one of these so callers can branch
// with errors.Is without parsing strings.
var (
	ErrFetch          = errors.New("fetch error")
	ErrTranscription  = errors.New("transcription error")
	ErrClassification = errors.New("classification error")
	ErrAudioEdit      = errors.New("audio edit error")
	ErrStore          = errors.New("store error")
	ErrConfiguration  = errors.New("configuration error")
	ErrTimeout        = errors.New("timeout error")
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
)

// ServiceError carries the failure category plus where it happened. The
// category marker participates in errors.Is chains; stage and operation feed
// the episode error message persisted for operators.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation)
	message := strings.TrimSpace(e.Message)
	switch {
	case detail != "" && message != "":
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", detail, message, e.Err)
		}
		return fmt.Sprintf("%s: %s", detail, message)
	case detail != "":
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", detail, e.Err)
		}
		return detail
	case message != "":
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", message, e.Err)
		}
		return message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Marker.Error()
	}
}

func (e *ServiceError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap builds a ServiceError in one call. marker should be one of the
// package sentinels; stage and operation locate the failure; message adds
// human context; err is the underlying cause and may be nil.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrValidation
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     stage,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// Details reports the stage and operation recorded on err, if any.
func Details(err error) (stage, operation string, ok bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Stage, svcErr.Operation, true
	}
	return "", "", false
}

func buildDetail(stage, operation string) string {
	stage = strings.TrimSpace(stage)
	operation = strings.TrimSpace(operation)
	switch {
	case stage != "" && operation != "":
		return stage + " " + operation
	case stage != "":
		return stage
	default:
		return operation
	}
}
