package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const aggregatorABIJSON = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainPegOptions parameterise the on-chain peg source.
type ChainPegOptions struct {
	RPCURL      string
	FeedAddress string
	Timeout     time.Duration
}

// ChainPeg resolves the stablecoin peg from a Chainlink USDT/USD price feed
// over Ethereum RPC, as an alternative to the spot-price API.
type ChainPeg struct {
	opts      ChainPegOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChainPeg builds the on-chain peg source.
func NewChainPeg(opts ChainPegOptions, logger zerolog.Logger) *ChainPeg {
	return &ChainPeg{opts: opts, logger: logger.With().Str("component", "peg_chain").Logger()}
}

func (c *ChainPeg) Name() string { return "peg.chain" }

// FetchPeg reads latestRoundData from the configured feed and scales the
// answer by the feed's decimals.
func (c *ChainPeg) FetchPeg(ctx context.Context) (float64, error) {
	if c.opts.RPCURL == "" {
		return 0, errors.New("ethereum rpc url not configured")
	}
	if c.opts.FeedAddress == "" {
		return 0, errors.New("price feed address not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	addr := common.HexToAddress(c.opts.FeedAddress)

	decimalsPayload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: decimalsPayload}, nil)
	if err != nil {
		return 0, err
	}
	decimalsOut, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(decimalsOut) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	feedDecimals, ok := decimalsOut[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	roundPayload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return 0, err
	}
	res, err = client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: roundPayload}, nil)
	if err != nil {
		return 0, err
	}
	roundOut, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return 0, err
	}
	if len(roundOut) != 5 {
		return 0, errors.New("unexpected latestRoundData response")
	}
	answer, ok := roundOut[1].(*big.Int)
	if !ok {
		return 0, errors.New("failed to decode latestRoundData answer")
	}

	peg := decimal.NewFromBigInt(answer, -int32(feedDecimals)).InexactFloat64()
	if peg <= 0 {
		return 0, fmt.Errorf("feed returned non-positive peg %v", peg)
	}
	return peg, nil
}

func (c *ChainPeg) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ PegSource = (*ChainPeg)(nil)
