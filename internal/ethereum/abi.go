package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// easyAuctionABI is the subset of the EasyAuction contract interface used
// for claiming.
const easyAuctionABI = `[
	{
		"name": "containsOrder",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "auctionId", "type": "uint256"},
			{"name": "order", "type": "bytes32"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "claimFromParticipantOrder",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "auctionId", "type": "uint256"},
			{"name": "orders", "type": "bytes32[]"}
		],
		"outputs": [
			{"name": "sumAuctioningTokenAmount", "type": "uint256"},
			{"name": "sumBiddingTokenAmount", "type": "uint256"}
		]
	},
	{
		"name": "auctionData",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "", "type": "uint256"}],
		"outputs": [
			{"name": "auctioningToken", "type": "address"},
			{"name": "biddingToken", "type": "address"},
			{"name": "orderCancellationEndDate", "type": "uint256"},
			{"name": "auctionEndDate", "type": "uint256"},
			{"name": "initialAuctionOrder", "type": "bytes32"},
			{"name": "minimumBiddingAmountPerOrder", "type": "uint256"},
			{"name": "interimSumBidAmount", "type": "uint256"},
			{"name": "interimOrder", "type": "bytes32"},
			{"name": "clearingPriceOrder", "type": "bytes32"},
			{"name": "volumeClearingPriceOrder", "type": "uint96"},
			{"name": "minFundingThresholdNotReached", "type": "bool"},
			{"name": "isAtomicClosureAllowed", "type": "bool"},
			{"name": "feeNumerator", "type": "uint256"},
			{"name": "minFundingThreshold", "type": "uint256"}
		]
	}
]`

const erc20ABI = `[
	{
		"name": "symbol",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"name": "decimals",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}]
	}
]`

var (
	// EasyAuctionABI is the parsed EasyAuction interface.
	EasyAuctionABI = mustParseABI(easyAuctionABI)
	// ERC20ABI is the parsed ERC20 metadata interface.
	ERC20ABI = mustParseABI(erc20ABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
