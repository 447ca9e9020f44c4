// Package errors provides structured error types for better observability
// and programmatic error handling across the node agent and the controller.
//
// Domain codes classify fleet failures: connectivity problems are fatal to a
// controller run, device mismatches are recorded as job status, and unknown
// jobs are reported as payloads instead of transport errors.
//
// Example usage:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeFlashFailure,
//	    "failed to flash firmware",
//	    cause,
//	    map[string]any{
//	        "image": imagePath,
//	        "port":  portPath,
//	    },
//	)
//
//	if errors.IsCode(err, errors.ErrCodeConnectivity) {
//	    // abort the run
//	}
package errors
