package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/wad"
)

const (
	// ObligationLen is the persisted size of an Obligation.
	ObligationLen = 1092
	// ObligationCollateralLen is the width of one deposit slot.
	ObligationCollateralLen = pubkeyLen + 8 + decimalLen*2
	// ObligationLiquidityLen is the width of one borrow slot.
	ObligationLiquidityLen = pubkeyLen + decimalLen*4
	// ObligationSlabLen holds one deposit slot plus nine borrow slots. Deposits
	// are packed first, borrows follow, each at its own width.
	ObligationSlabLen = ObligationCollateralLen + ObligationLiquidityLen*(MaxObligationReserves-1)
)

// ObligationCollateral is one deposit of reserve collateral.
type ObligationCollateral struct {
	DepositReserve  solana.PublicKey
	DepositedAmount uint64
	MarketValue     wad.Decimal
	// Index is the reserve's L-token mining index at the last settlement.
	Index wad.Decimal
}

// Deposit increases the deposited amount.
func (c *ObligationCollateral) Deposit(amount uint64) error {
	sum := c.DepositedAmount + amount
	if sum < c.DepositedAmount {
		return wad.ErrMathOverflow
	}
	c.DepositedAmount = sum
	return nil
}

// Withdraw decreases the deposited amount.
func (c *ObligationCollateral) Withdraw(amount uint64) error {
	if amount > c.DepositedAmount {
		return wad.ErrMathOverflow
	}
	c.DepositedAmount -= amount
	return nil
}

// ObligationLiquidity is one borrow against a reserve.
type ObligationLiquidity struct {
	BorrowReserve           solana.PublicKey
	CumulativeBorrowRateWad wad.Decimal
	BorrowedAmountWad       wad.Decimal
	MarketValue             wad.Decimal
	// Index is the reserve's borrow mining index at the last settlement.
	Index wad.Decimal
}

// Borrow adds debt.
func (l *ObligationLiquidity) Borrow(amount wad.Decimal) error {
	sum, err := l.BorrowedAmountWad.TryAdd(amount)
	if err != nil {
		return err
	}
	l.BorrowedAmountWad = sum
	return nil
}

// Repay removes settled debt.
func (l *ObligationLiquidity) Repay(settle wad.Decimal) error {
	rest, err := l.BorrowedAmountWad.TrySub(settle)
	if err != nil {
		return err
	}
	l.BorrowedAmountWad = rest
	return nil
}

// Obligation is one user's position in a market.
type Obligation struct {
	Version              uint8
	LastUpdate           LastUpdate
	LendingMarket        solana.PublicKey
	Owner                solana.PublicKey
	Deposits             []ObligationCollateral
	Borrows              []ObligationLiquidity
	DepositedValue       wad.Decimal
	BorrowedValue        wad.Decimal
	AllowedBorrowValue   wad.Decimal
	UnhealthyBorrowValue wad.Decimal
	UnclaimedMine        wad.Decimal
}

// NewObligation returns an empty, stale obligation.
func NewObligation(currentSlot uint64, market, owner solana.PublicKey) *Obligation {
	return &Obligation{
		Version:       ProgramVersion,
		LastUpdate:    NewLastUpdate(currentSlot),
		LendingMarket: market,
		Owner:         owner,
	}
}

// IsInitialized reports whether the record has been created.
func (o *Obligation) IsInitialized() bool {
	return o != nil && o.Version != UninitializedVersion
}

// Clone returns a deep copy of the obligation.
func (o *Obligation) Clone() *Obligation {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Deposits != nil {
		clone.Deposits = append([]ObligationCollateral(nil), o.Deposits...)
	}
	if o.Borrows != nil {
		clone.Borrows = append([]ObligationLiquidity(nil), o.Borrows...)
	}
	return &clone
}

// RemainingBorrowValue is the value that may still be borrowed, zero when the
// position is already at or above its limit.
func (o *Obligation) RemainingBorrowValue() wad.Decimal {
	rest, err := o.AllowedBorrowValue.TrySub(o.BorrowedValue)
	if err != nil {
		return wad.Zero()
	}
	return rest
}

// FindDeposit returns the index of the deposit for reserve, or -1.
func (o *Obligation) FindDeposit(reserve solana.PublicKey) int {
	for i := range o.Deposits {
		if o.Deposits[i].DepositReserve.Equals(reserve) {
			return i
		}
	}
	return -1
}

// FindBorrow returns the index of the borrow for reserve, or -1.
func (o *Obligation) FindBorrow(reserve solana.PublicKey) int {
	for i := range o.Borrows {
		if o.Borrows[i].BorrowReserve.Equals(reserve) {
			return i
		}
	}
	return -1
}

func slabWidth(deposits, borrows int) int {
	return deposits*ObligationCollateralLen + borrows*ObligationLiquidityLen
}

func checkCapacity(deposits, borrows int) error {
	if deposits+borrows > MaxObligationReserves {
		return fmt.Errorf("%w: %d entries, limit %d", ErrCapacityExceeded, deposits+borrows, MaxObligationReserves)
	}
	if width := slabWidth(deposits, borrows); width > ObligationSlabLen {
		return fmt.Errorf("%w: %d deposits and %d borrows need %d bytes, slab holds %d", ErrCapacityExceeded, deposits, borrows, width, ObligationSlabLen)
	}
	return nil
}

// AddDeposit appends a new deposit entry and returns its index.
func (o *Obligation) AddDeposit(reserve solana.PublicKey, miningIndex wad.Decimal) (int, error) {
	if o.FindDeposit(reserve) >= 0 {
		return -1, fmt.Errorf("%w: deposit %s", ErrDuplicateReserveEntry, reserve)
	}
	if err := checkCapacity(len(o.Deposits)+1, len(o.Borrows)); err != nil {
		return -1, err
	}
	o.Deposits = append(o.Deposits, ObligationCollateral{DepositReserve: reserve, Index: miningIndex})
	return len(o.Deposits) - 1, nil
}

// FindOrAddDeposit returns the deposit for reserve, creating it when absent.
func (o *Obligation) FindOrAddDeposit(reserve solana.PublicKey, miningIndex wad.Decimal) (int, error) {
	if i := o.FindDeposit(reserve); i >= 0 {
		return i, nil
	}
	return o.AddDeposit(reserve, miningIndex)
}

// AddBorrow appends a new borrow entry and returns its index.
func (o *Obligation) AddBorrow(reserve solana.PublicKey, cumulativeRate, miningIndex wad.Decimal) (int, error) {
	if o.FindBorrow(reserve) >= 0 {
		return -1, fmt.Errorf("%w: borrow %s", ErrDuplicateReserveEntry, reserve)
	}
	if err := checkCapacity(len(o.Deposits), len(o.Borrows)+1); err != nil {
		return -1, err
	}
	o.Borrows = append(o.Borrows, ObligationLiquidity{
		BorrowReserve:           reserve,
		CumulativeBorrowRateWad: cumulativeRate,
		Index:                   miningIndex,
	})
	return len(o.Borrows) - 1, nil
}

// FindOrAddBorrow returns the borrow for reserve, creating it when absent.
func (o *Obligation) FindOrAddBorrow(reserve solana.PublicKey, cumulativeRate, miningIndex wad.Decimal) (int, error) {
	if i := o.FindBorrow(reserve); i >= 0 {
		return i, nil
	}
	return o.AddBorrow(reserve, cumulativeRate, miningIndex)
}

// RemoveDeposit drops the deposit at i, keeping the order of the rest.
func (o *Obligation) RemoveDeposit(i int) {
	o.Deposits = append(o.Deposits[:i], o.Deposits[i+1:]...)
}

// RemoveBorrow drops the borrow at i, keeping the order of the rest.
func (o *Obligation) RemoveBorrow(i int) {
	o.Borrows = append(o.Borrows[:i], o.Borrows[i+1:]...)
}

// MarshalBinary encodes the obligation. Slab bytes past the last entry are
// zeroed.
func (o *Obligation) MarshalBinary() ([]byte, error) {
	if err := checkCapacity(len(o.Deposits), len(o.Borrows)); err != nil {
		return nil, fmt.Errorf("state: encode obligation: %w", err)
	}
	w := newRecordWriter(ObligationLen)
	w.u8(o.Version)
	w.u64(o.LastUpdate.Slot)
	w.boolean(o.LastUpdate.Stale)
	w.pubkey(o.LendingMarket)
	w.pubkey(o.Owner)
	w.decimal(o.DepositedValue)
	w.decimal(o.BorrowedValue)
	w.decimal(o.AllowedBorrowValue)
	w.decimal(o.UnhealthyBorrowValue)
	w.u8(uint8(len(o.Deposits)))
	w.u8(uint8(len(o.Borrows)))
	w.decimal(o.UnclaimedMine)
	for _, c := range o.Deposits {
		w.pubkey(c.DepositReserve)
		w.u64(c.DepositedAmount)
		w.decimal(c.MarketValue)
		w.decimal(c.Index)
	}
	for _, l := range o.Borrows {
		w.pubkey(l.BorrowReserve)
		w.decimal(l.CumulativeBorrowRateWad)
		w.decimal(l.BorrowedAmountWad)
		w.decimal(l.MarketValue)
		w.decimal(l.Index)
	}
	w.zeros(ObligationSlabLen - slabWidth(len(o.Deposits), len(o.Borrows)))
	return w.finish("obligation", ObligationLen)
}

// UnmarshalBinary decodes an obligation record. Entry counts that overflow
// the slab and repeated reserves are rejected.
func (o *Obligation) UnmarshalBinary(data []byte) error {
	r, err := newRecordReader("obligation", data, ObligationLen)
	if err != nil {
		return err
	}
	var out Obligation
	out.Version = r.version()
	out.LastUpdate.Slot = r.u64("last_update.slot")
	out.LastUpdate.Stale = r.boolean("last_update.stale")
	out.LendingMarket = r.pubkey("lending_market")
	out.Owner = r.pubkey("owner")
	out.DepositedValue = r.decimal("deposited_value")
	out.BorrowedValue = r.decimal("borrowed_value")
	out.AllowedBorrowValue = r.decimal("allowed_borrow_value")
	out.UnhealthyBorrowValue = r.decimal("unhealthy_borrow_value")
	depositsLen := int(r.u8("deposits_len"))
	borrowsLen := int(r.u8("borrows_len"))
	out.UnclaimedMine = r.decimal("unclaimed_mine")
	if r.err == nil {
		if err := checkCapacity(depositsLen, borrowsLen); err != nil {
			r.fail("deposits_len", err)
		}
	}
	if r.err != nil {
		return r.done()
	}

	for i := 0; i < depositsLen; i++ {
		var c ObligationCollateral
		c.DepositReserve = r.pubkey("deposits.reserve")
		c.DepositedAmount = r.u64("deposits.amount")
		c.MarketValue = r.decimal("deposits.market_value")
		c.Index = r.decimal("deposits.index")
		if out.FindDeposit(c.DepositReserve) >= 0 {
			r.fail("deposits.reserve", fmt.Errorf("%v: %s", ErrDuplicateReserveEntry, c.DepositReserve))
		}
		out.Deposits = append(out.Deposits, c)
	}
	for i := 0; i < borrowsLen; i++ {
		var l ObligationLiquidity
		l.BorrowReserve = r.pubkey("borrows.reserve")
		l.CumulativeBorrowRateWad = r.decimal("borrows.cumulative_borrow_rate")
		l.BorrowedAmountWad = r.decimal("borrows.borrowed_amount")
		l.MarketValue = r.decimal("borrows.market_value")
		l.Index = r.decimal("borrows.index")
		if out.FindBorrow(l.BorrowReserve) >= 0 {
			r.fail("borrows.reserve", fmt.Errorf("%v: %s", ErrDuplicateReserveEntry, l.BorrowReserve))
		}
		out.Borrows = append(out.Borrows, l)
	}
	r.skip("slab", ObligationSlabLen-slabWidth(depositsLen, borrowsLen))
	if err := r.done(); err != nil {
		return err
	}
	*o = out
	return nil
}

// DecodeObligation is a convenience wrapper around UnmarshalBinary.
func DecodeObligation(data []byte) (*Obligation, error) {
	o := new(Obligation)
	if err := o.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return o, nil
}
