// Package instruction encodes and decodes lending operations: one tag byte
// followed by little-endian fixed-width fields.
package instruction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/state"
)

// Tag selects the operation.
type Tag uint8

const (
	TagInitLendingMarket            Tag = 0
	TagSetLendingMarketOwner        Tag = 1
	TagInitReserve                  Tag = 2
	TagRefreshReserve               Tag = 3
	TagDepositReserveLiquidity      Tag = 4
	TagRedeemReserveCollateral      Tag = 5
	TagInitObligation               Tag = 6
	TagRefreshObligation            Tag = 7
	TagDepositObligationCollateral  Tag = 8
	TagWithdrawObligationCollateral Tag = 9
	TagBorrowObligationLiquidity    Tag = 10
	TagRepayObligationLiquidity     Tag = 11
	TagLiquidateObligation          Tag = 12
	TagFlashLoan                    Tag = 13
	TagSetReserveConfig             Tag = 14
	TagInitMining                   Tag = 16
	TagDepositMining                Tag = 18
	TagWithdrawMining               Tag = 19
	TagClaimMiningMine              Tag = 20
	TagClaimObligationMine          Tag = 21
	TagClaimOwnerFee                Tag = 22
	TagReceivePendingOwner          Tag = 23
	TagRefreshReserves              Tag = 24
	TagLiquidateObligation2         Tag = 25
)

var tagNames = map[Tag]string{
	TagInitLendingMarket:            "InitLendingMarket",
	TagSetLendingMarketOwner:        "SetLendingMarketOwner",
	TagInitReserve:                  "InitReserve",
	TagRefreshReserve:               "RefreshReserve",
	TagDepositReserveLiquidity:      "DepositReserveLiquidity",
	TagRedeemReserveCollateral:      "RedeemReserveCollateral",
	TagInitObligation:               "InitObligation",
	TagRefreshObligation:            "RefreshObligation",
	TagDepositObligationCollateral:  "DepositObligationCollateral",
	TagWithdrawObligationCollateral: "WithdrawObligationCollateral",
	TagBorrowObligationLiquidity:    "BorrowObligationLiquidity",
	TagRepayObligationLiquidity:     "RepayObligationLiquidity",
	TagLiquidateObligation:          "LiquidateObligation",
	TagFlashLoan:                    "FlashLoan",
	TagSetReserveConfig:             "SetReserveConfig",
	TagInitMining:                   "InitMining",
	TagDepositMining:                "DepositMining",
	TagWithdrawMining:               "WithdrawMining",
	TagClaimMiningMine:              "ClaimMiningMine",
	TagClaimObligationMine:          "ClaimObligationMine",
	TagClaimOwnerFee:                "ClaimOwnerFee",
	TagReceivePendingOwner:          "ReceivePendingOwner",
	TagRefreshReserves:              "RefreshReserves",
	TagLiquidateObligation2:         "LiquidateObligation2",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Known reports whether t is a recognised operation.
func (t Tag) Known() bool {
	_, ok := tagNames[t]
	return ok
}

// Instruction is a decoded operation. The concrete value is one of the
// types declared in this package.
type Instruction interface {
	Tag() Tag
}

type InitLendingMarket struct {
	Owner         solana.PublicKey
	QuoteCurrency [32]byte
}

type SetLendingMarketOwner struct {
	NewOwner solana.PublicKey
}

// InitReserve carries the reserve configuration and mining parameters.
// Deposit limit and pause flags are not part of this encoding and decode as
// zero values.
type InitReserve struct {
	Config           state.ReserveConfig
	TotalMiningSpeed uint64
	KinkUtilRate     uint64
	UsePythOracle    bool
	IsLP             bool
}

type RefreshReserve struct{}

type DepositReserveLiquidity struct {
	LiquidityAmount uint64
}

type RedeemReserveCollateral struct {
	CollateralAmount uint64
}

type InitObligation struct{}

type RefreshObligation struct{}

type DepositObligationCollateral struct {
	CollateralAmount uint64
}

// WithdrawObligationCollateral withdraws CollateralAmount, or everything
// withdrawable when it is math.MaxUint64.
type WithdrawObligationCollateral struct {
	CollateralAmount uint64
}

// BorrowObligationLiquidity borrows LiquidityAmount, or the full remaining
// capacity when it is math.MaxUint64.
type BorrowObligationLiquidity struct {
	LiquidityAmount uint64
}

// RepayObligationLiquidity repays LiquidityAmount, or the full debt when it
// is math.MaxUint64.
type RepayObligationLiquidity struct {
	LiquidityAmount uint64
}

type LiquidateObligation struct {
	LiquidityAmount uint64
}

// FlashLoan passes every byte after the amount through to the receiver.
type FlashLoan struct {
	Amount       uint64
	CallbackData []byte
}

// SetReserveConfig replaces a reserve's configuration, including pause flags
// and the deposit limit. Host fee receivers are managed separately.
type SetReserveConfig struct {
	Config state.ReserveConfig
}

type InitMining struct{}

type DepositMining struct {
	Amount uint64
}

type WithdrawMining struct {
	Amount uint64
}

type ClaimMiningMine struct{}

type ClaimObligationMine struct{}

type ClaimOwnerFee struct{}

type ReceivePendingOwner struct{}

type RefreshReserves struct{}

type LiquidateObligation2 struct {
	LiquidityAmount uint64
}

func (InitLendingMarket) Tag() Tag            { return TagInitLendingMarket }
func (SetLendingMarketOwner) Tag() Tag        { return TagSetLendingMarketOwner }
func (InitReserve) Tag() Tag                  { return TagInitReserve }
func (RefreshReserve) Tag() Tag               { return TagRefreshReserve }
func (DepositReserveLiquidity) Tag() Tag      { return TagDepositReserveLiquidity }
func (RedeemReserveCollateral) Tag() Tag      { return TagRedeemReserveCollateral }
func (InitObligation) Tag() Tag               { return TagInitObligation }
func (RefreshObligation) Tag() Tag            { return TagRefreshObligation }
func (DepositObligationCollateral) Tag() Tag  { return TagDepositObligationCollateral }
func (WithdrawObligationCollateral) Tag() Tag { return TagWithdrawObligationCollateral }
func (BorrowObligationLiquidity) Tag() Tag    { return TagBorrowObligationLiquidity }
func (RepayObligationLiquidity) Tag() Tag     { return TagRepayObligationLiquidity }
func (LiquidateObligation) Tag() Tag          { return TagLiquidateObligation }
func (FlashLoan) Tag() Tag                    { return TagFlashLoan }
func (SetReserveConfig) Tag() Tag             { return TagSetReserveConfig }
func (InitMining) Tag() Tag                   { return TagInitMining }
func (DepositMining) Tag() Tag                { return TagDepositMining }
func (WithdrawMining) Tag() Tag               { return TagWithdrawMining }
func (ClaimMiningMine) Tag() Tag              { return TagClaimMiningMine }
func (ClaimObligationMine) Tag() Tag          { return TagClaimObligationMine }
func (ClaimOwnerFee) Tag() Tag                { return TagClaimOwnerFee }
func (ReceivePendingOwner) Tag() Tag          { return TagReceivePendingOwner }
func (RefreshReserves) Tag() Tag              { return TagRefreshReserves }
func (LiquidateObligation2) Tag() Tag         { return TagLiquidateObligation2 }
