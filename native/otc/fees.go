package otc

import "github.com/holiman/uint256"

// ProRata prices a fill: floor(originalA * fillB / originalB) computed in
// 256-bit arithmetic.
func ProRata(originalA, originalB, fillB uint64) (uint64, error) {
	if originalB == 0 {
		return 0, ErrArithmeticOverflow
	}
	x := uint256.NewInt(originalA)
	y := uint256.NewInt(fillB)
	d := uint256.NewInt(originalB)
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow || !out.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return out.Uint64(), nil
}

// ComputeFee splits amount into the treasury fee and the net payout.
// fee = floor(amount * feeBps / 10000); net = amount - fee.
func ComputeFee(amount uint64, feeBps uint16) (fee uint64, net uint64, err error) {
	if feeBps > BasisPoints {
		return 0, 0, ErrInvalidFeeBps
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(uint64(feeBps)))
	if overflow {
		return 0, 0, ErrArithmeticOverflow
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(BasisPoints))
	if !quotient.IsUint64() {
		return 0, 0, ErrArithmeticOverflow
	}
	fee = quotient.Uint64()
	if fee > amount {
		return 0, 0, ErrArithmeticOverflow
	}
	return fee, amount - fee, nil
}

func addExpiry(now, lifetime int64) (int64, error) {
	if lifetime > 0 && now > maxInt64-lifetime {
		return 0, ErrArithmeticOverflow
	}
	if lifetime < 0 && now < minInt64-lifetime {
		return 0, ErrArithmeticOverflow
	}
	return now + lifetime, nil
}

const (
	maxInt64 = int64(^uint64(0) >> 1)
	minInt64 = -maxInt64 - 1
)
