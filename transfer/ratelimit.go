package transfer

import "github.com/quantarax/wiretransport/internal/ratelimit"

// WithRateLimitedUploadPermission gates new upload starts behind a token
// bucket (the teacher's internal/ratelimit.TokenBucket, previously only
// wired into the relay's raw connection accept loop): each BeginUpload
// attempt consumes one token before inner is even consulted, so a burst
// of upload starts sheds load at admission rather than after a session
// and its chunk store are already allocated. inner may be nil.
func WithRateLimitedUploadPermission(limiter *ratelimit.TokenBucket, inner UploadPermissionFunc) ReceiverOption {
	return WithUploadPermission(func(fileID string, metadata UploadMetadata) (PermissionResult, error) {
		if !limiter.Allow(1) {
			return Deny("upload rate limit exceeded"), nil
		}
		if inner == nil {
			return Allow(), nil
		}
		return inner(fileID, metadata)
	})
}
