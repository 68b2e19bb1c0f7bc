package multicall

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Multicall v1 aggregate(). One eth_call fans out the per-token balance
// and allowance reads the wallet refresher needs.
const multicallABI = `[
{
    "constant": false,
    "inputs": [
        {
            "components": [
                {"name": "target", "type": "address"},
                {"name": "callData", "type": "bytes"}
            ],
            "name": "calls",
            "type": "tuple[]"
        }
    ],
    "name": "aggregate",
    "outputs": [
        {"name": "blockNumber", "type": "uint256"},
        {"name": "returnData", "type": "bytes[]"}
    ],
    "payable": false,
    "stateMutability": "nonpayable",
    "type": "function"
}
]`

type Caller interface {
	Aggregate(ctx context.Context, calls []Call) ([]Result, error)
}

type Call struct {
	Target   common.Address
	CallData []byte
}

type Result struct {
	Success bool
	Data    []byte
}

type Client struct {
	ec   *ethclient.Client
	addr common.Address
	abi  abi.ABI
}

func New(ec *ethclient.Client, addr common.Address) (Caller, error) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return nil, fmt.Errorf("bad abi: %w", err)
	}
	return &Client{ec: ec, addr: addr, abi: parsed}, nil
}

// Aggregate executes all calls in a single eth_call and returns the raw
// return data per call, in order.
func (c *Client) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	payload, err := c.abi.Pack("aggregate", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate: %w", err)
	}

	res, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call aggregate: %w", err)
	}

	var agg struct {
		BlockNumber *big.Int
		ReturnData  [][]byte
	}
	if err := c.abi.UnpackIntoInterface(&agg, "aggregate", res); err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	if len(agg.ReturnData) != len(calls) {
		return nil, fmt.Errorf("aggregate returned %d results for %d calls", len(agg.ReturnData), len(calls))
	}

	out := make([]Result, len(calls))
	for i, r := range agg.ReturnData {
		out[i] = Result{Success: len(r) > 0, Data: r}
	}
	return out, nil
}
