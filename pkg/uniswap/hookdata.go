package uniswap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var hookDataArgs = abi.Arguments{
	{Name: "beneficiary", Type: mustNewType("address")},
}

// EncodeHookData ABI-encodes the beneficiary address so the savings hook
// can attribute the diverted amount to the right user. This is the only
// hook-data layout the on-chain contract accepts.
func EncodeHookData(user common.Address) ([]byte, error) {
	if user == (common.Address{}) {
		return nil, fmt.Errorf("hook data requires a non-zero beneficiary address")
	}
	data, err := hookDataArgs.Pack(user)
	if err != nil {
		return nil, fmt.Errorf("fail to encode hook data: %w", err)
	}
	return data, nil
}
