package gemini

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

// classifyGeminiError maps gRPC status codes from the API; anything without
// a status falls back to the transport classifier.
func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}

	st, ok := status.FromError(err)
	if !ok {
		return resilience.ClassifyTransient(err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition:
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	default:
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}
}

func wrapTemporary(operation string, err error) error {
	return resilience.WrapTemporary(operation, err, classifyGeminiError)
}
