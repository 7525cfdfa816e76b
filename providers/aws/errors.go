package aws

import (
	"errors"

	"github.com/aws/smithy-go"

	"github.com/cairnhq/cairn/pkg/provider"
)

// Error codes AWS returns for conditions that clear up on their own.
var transientCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"ServiceUnavailable":                     true,
	"ServiceUnavailableException":            true,
	"InternalError":                          true,
	"InternalFailure":                        true,
	"RequestTimeout":                         true,
	"IDPCommunicationError":                  true,
	"EC2ThrottledException":                  true,
	"InsufficientInstanceCapacity":           true,
	"DependencyViolation":                    true,
	"InvalidVpcID.NotFound":                  true, // eventual consistency after create
	"InvalidSubnetID.NotFound":               true,
	"InvalidGroup.NotFound":                  true,
	"ResourceInUseException":                 true,
	"ConcurrentModificationException":        true,
	"ProvisionedThroughputExceededException": true,
}

// classify wraps an AWS SDK error as a retryable or permanent operation
// failure based on its API error code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.ErrorCode()] {
			return provider.NewTransient(err)
		}
		return provider.NewPermanent(err)
	}
	// Connection-level failures have no API code; let the message-pattern
	// fallback decide retryability.
	if provider.IsTransient(err) {
		return provider.NewTransient(err)
	}
	return provider.NewPermanent(err)
}

// wrapPartial classifies err and attaches the id of the resource that was
// created before the failure, so the engine records it instead of leaking it.
func wrapPartial(err error, id string) error {
	classified := classify(err)
	var op *provider.OpError
	if errors.As(classified, &op) {
		return op.WithPartial(map[string]any{"id": id})
	}
	return classified
}

// isNotFound reports whether err indicates the resource no longer exists.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "InvalidVpcID.NotFound", "InvalidSubnetID.NotFound", "InvalidGroup.NotFound",
		"InvalidInstanceID.NotFound", "InvalidInternetGatewayID.NotFound",
		"InvalidTransitGatewayAttachmentID.NotFound",
		"ResourceNotFoundException", "NoSuchEntity", "NoSuchEntityException":
		return true
	}
	return false
}
