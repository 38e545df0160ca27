package evm

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsafe/htlc-resolver/pkg/escrow"
)

// decodeRevert turns a contract revert carrying one of the escrow custom
// errors into an *escrow.Error. Other errors are returned unchanged.
func decodeRevert(err error) error {
	if err == nil {
		return nil
	}
	var de rpc.DataError
	if !errors.As(err, &de) {
		return err
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return err
	}
	data, decErr := hexutil.Decode(raw)
	if decErr != nil || len(data) < 4 {
		return err
	}
	for name, e := range escrowABI.Errors {
		if bytes.Equal(e.ID[:4], data[:4]) {
			if code := escrow.CodeFromName(name); code != escrow.CodeUnknown {
				return &escrow.Error{Code: code, Msg: "reverted"}
			}
		}
	}
	return err
}
