package plans

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[[plans]]
id = "free"
name = "Free"
words_limit = 1000
retention_days = 7
[plans.prices]
usd = 0

[[plans]]
id = "pro"
name = "Pro"
words_limit = 10000
retention_days = 30
[plans.prices]
usd = 999
inr = 79900

[word_pricing]
min_words = 1000
max_words = 100000
[word_pricing.per_thousand]
usd = 250

[[coupons]]
code = "launch100"
percent_off = 100
max_redemptions = 50
once_per_user = true

[[coupons]]
code = "half"
percent_off = 50
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleTOML))
	require.NoError(t, err)

	pro := c.Get(Pro)
	require.NotNil(t, pro)
	assert.Equal(t, int64(10000), pro.WordsLimit)
	assert.Equal(t, 30*24*time.Hour, c.Retention(Pro))
	assert.Len(t, c.All(), 2)

	price, err := c.PlanPrice(Pro, "INR")
	require.NoError(t, err)
	assert.Equal(t, int64(79900), price)

	_, err = c.PlanPrice(Premium, "usd")
	assert.ErrorIs(t, err, ErrUnknownPlan)
	_, err = c.PlanPrice(Pro, "eur")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestParseRejectsMissingFree(t *testing.T) {
	_, err := Parse([]byte(`
[[plans]]
id = "pro"
retention_days = 30
`))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o600))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.True(t, c.Exists(Free))

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDefaultRetentionWindows(t *testing.T) {
	c := Default()
	day := 24 * time.Hour
	assert.Equal(t, 7*day, c.Retention(Free))
	assert.Equal(t, 30*day, c.Retention(Pro))
	assert.Equal(t, 90*day, c.Retention(Premium))
	assert.Equal(t, 7*day, c.Retention("enterprise"))
}

func TestWordPrice(t *testing.T) {
	c, err := Parse([]byte(sampleTOML))
	require.NoError(t, err)

	price, err := c.WordPrice(2000, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(500), price)

	price, err = c.WordPrice(1500, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(375), price)

	_, err = c.WordPrice(500, "usd")
	assert.Error(t, err)
	_, err = c.WordPrice(200000, "usd")
	assert.Error(t, err)
	_, err = c.WordPrice(2000, "inr")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestCouponApply(t *testing.T) {
	c, err := Parse([]byte(sampleTOML))
	require.NoError(t, err)

	launch, err := c.Coupon("LAUNCH100")
	require.NoError(t, err)
	assert.Zero(t, launch.Apply(999))

	half, err := c.Coupon("half")
	require.NoError(t, err)
	assert.Equal(t, int64(500), half.Apply(1000))
	assert.Equal(t, int64(500), half.Apply(999))

	_, err = c.Coupon("nope")
	assert.ErrorIs(t, err, ErrUnknownCoupon)
}

func TestCouponLimits(t *testing.T) {
	c, err := Parse([]byte(sampleTOML))
	require.NoError(t, err)

	launch, err := c.Coupon(" launch100 ")
	require.NoError(t, err)
	assert.Equal(t, "LAUNCH100", launch.Code)
	assert.Equal(t, int64(50), launch.MaxRedemptions)
	assert.True(t, launch.OncePerUser)
	assert.True(t, launch.Limited())

	half, err := c.Coupon("HALF")
	require.NoError(t, err)
	assert.False(t, half.Limited())

	none, err := c.Coupon("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRegisterCouponValidation(t *testing.T) {
	c := NewCatalog()
	assert.Error(t, c.RegisterCoupon(Coupon{Code: "", PercentOff: 10}))
	assert.Error(t, c.RegisterCoupon(Coupon{Code: "BIG", PercentOff: 120}))
	assert.Error(t, c.RegisterCoupon(Coupon{Code: "ZERO", PercentOff: 0}))
	assert.Error(t, c.RegisterCoupon(Coupon{Code: "NEG", PercentOff: 10, MaxRedemptions: -1}))
	require.NoError(t, c.RegisterCoupon(Coupon{Code: "ok", PercentOff: 10}))
	_, err := c.Coupon("OK")
	assert.NoError(t, err)
}

func TestDefaultShipsNoFreeCoupon(t *testing.T) {
	c := Default()
	require.NotEmpty(t, c.coupons)
	for _, coupon := range c.coupons {
		assert.Less(t, coupon.PercentOff, 100, coupon.Code)
		assert.True(t, coupon.Limited(), coupon.Code)
	}
}
