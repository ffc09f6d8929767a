package money

import (
	"testing"

	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/stretchr/testify/assert"
)

func TestRoundMoneyHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{in: 0.5, want: 1},
		{in: 1.5, want: 2},
		{in: 2.5, want: 3},
		{in: 2.4999, want: 2},
		{in: -0.5, want: -1},
		{in: -2.5, want: -3},
		{in: 499.5, want: 500},
		{in: 0, want: 0},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, RoundMoney(tc.in), "RoundMoney(%v)", tc.in)
	}
}

func TestRoundMoneyIdempotent(t *testing.T) {
	for _, x := range []float64{0.1, 12.5, 999.49, -3.5, 1e6 + 0.5} {
		once := RoundMoney(x)
		assert.Equal(t, once, RoundMoney(float64(once)))
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	assert.Equal(t, int64(600), Remaining(1000, 400))
	assert.Equal(t, int64(0), Remaining(1000, 1000))
	assert.Equal(t, int64(0), Remaining(1000, 1500))
	assert.Equal(t, int64(0), Remaining(0, 0))
}

func TestStatus3(t *testing.T) {
	cases := []struct {
		billed, paid int64
		want         enums.PaymentStatus
	}{
		{billed: 1000, paid: 0, want: enums.PaymentStatusUnpaid},
		{billed: 1000, paid: 400, want: enums.PaymentStatusPartiallyPaid},
		{billed: 1000, paid: 1000, want: enums.PaymentStatusPaid},
		{billed: 1000, paid: 1200, want: enums.PaymentStatusPaid},
		{billed: 0, paid: 0, want: enums.PaymentStatusPaid},
	}
	for _, tc := range cases {
		got := Status3(tc.billed, tc.paid, Remaining(tc.billed, tc.paid))
		assert.Equalf(t, tc.want, got, "Status3(%d, %d)", tc.billed, tc.paid)
	}
}

func TestStatusPaidIffRemainingZero(t *testing.T) {
	for billed := int64(0); billed <= 50; billed += 5 {
		for paid := int64(0); paid <= 60; paid += 3 {
			s := Settle(billed, paid)
			assert.Equal(t, s.Remaining == 0, s.Status == enums.PaymentStatusPaid, "billed=%d paid=%d", billed, paid)
		}
	}
}

func TestStatus2(t *testing.T) {
	assert.Equal(t, enums.SheetStatusPaid, Status2(500, 500))
	assert.Equal(t, enums.SheetStatusPaid, Status2(500, 700))
	assert.Equal(t, enums.SheetStatusNotPaid, Status2(500, 200))
	assert.Equal(t, enums.SheetStatusNotPaid, Status2(500, 0))
	assert.Equal(t, enums.SheetStatusPaid, Status2(0, 0))
}

func TestLineTotal(t *testing.T) {
	// 50 per kg x 100 kg + 10 per bag x 2 bags
	assert.Equal(t, int64(5020), LineTotal(50, 100, 10, 2))
	// 33 x 1.5 = 49.5 rounds to 50
	assert.Equal(t, int64(50), LineTotal(33, 1.5, 0, 0))
	assert.Equal(t, int64(0), LineTotal(0, 0, 0, 0))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, int64(500), Percent(5000, 10))
	assert.Equal(t, int64(63), Percent(1250, 5))    // 62.5
	assert.Equal(t, int64(13), Percent(1000, 1.25)) // 12.5
	assert.Equal(t, int64(0), Percent(0, 10))
}

func TestDerivedAmountsRoundLikeRoundMoney(t *testing.T) {
	assert.Equal(t, RoundMoney(2.5), LineTotal(1, 2.5, 0, 0))
	assert.Equal(t, RoundMoney(7.5), LineTotal(0, 0, 3, 2.5))
	assert.Equal(t, RoundMoney(2.5), Percent(5, 50))
}
