package transfer

import (
	"context"
	"time"

	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/security"
)

// FetchVerificationReceipt calls transfer.verify for contentID and
// returns the receipt the receiver recorded at upload completion.
func FetchVerificationReceipt(ctx context.Context, mux *rpcmux.Mux, contentID string) (*security.VerificationReceipt, error) {
	result, err := mux.Call(ctx, MethodVerify, verifyRequest{ContentID: contentID})
	if err != nil {
		return nil, err
	}
	vr, err := decodeAs[verifyResponse](result)
	if err != nil {
		return nil, err
	}
	status := security.VerificationRootMismatch
	if vr.Status == security.VerificationSuccess.String() {
		status = security.VerificationSuccess
	}
	return &security.VerificationReceipt{
		ContentID:    vr.ContentID,
		Status:       status,
		ComputedRoot: vr.ComputedRoot,
		ExpectedRoot: vr.ExpectedRoot,
		Timestamp:    time.Unix(vr.TimestampUTC, 0),
		Signature:    vr.Signature,
		SigningKey:   vr.SigningKey,
	}, nil
}
