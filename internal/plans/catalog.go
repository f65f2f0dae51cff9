// Package plans holds the subscription plan catalog: word quotas, retention
// windows, prices and coupons.
package plans

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	Free    = "free"
	Pro     = "pro"
	Premium = "premium"
)

var (
	ErrUnknownPlan     = errors.New("unknown plan")
	ErrUnknownCurrency = errors.New("currency not supported")
	ErrUnknownCoupon   = errors.New("unknown coupon")
)

type Plan struct {
	ID            string           `toml:"id"`
	Name          string           `toml:"name"`
	WordsLimit    int64            `toml:"words_limit"`
	RetentionDays int              `toml:"retention_days"`
	Prices        map[string]int64 `toml:"prices"` // currency → minor units per month
}

type WordPricing struct {
	MinWords    int64            `toml:"min_words"`
	MaxWords    int64            `toml:"max_words"`
	PerThousand map[string]int64 `toml:"per_thousand"` // currency → minor units per 1000 words
}

// Coupon is a percentage discount. MaxRedemptions of zero means unlimited.
type Coupon struct {
	Code           string `toml:"code"`
	PercentOff     int    `toml:"percent_off"`
	MaxRedemptions int64  `toml:"max_redemptions"`
	OncePerUser    bool   `toml:"once_per_user"`
}

// Apply returns the discounted amount, never negative.
func (c *Coupon) Apply(amount int64) int64 {
	discounted := amount - amount*int64(c.PercentOff)/100
	if discounted < 0 {
		return 0
	}
	return discounted
}

// Limited reports whether redemptions of the coupon have to be counted.
func (c *Coupon) Limited() bool {
	return c.MaxRedemptions > 0 || c.OncePerUser
}

type File struct {
	Plans       []Plan      `toml:"plans"`
	WordPricing WordPricing `toml:"word_pricing"`
	Coupons     []Coupon    `toml:"coupons"`
}

type Catalog struct {
	mu      sync.RWMutex
	plans   map[string]*Plan
	pricing WordPricing
	coupons map[string]*Coupon
}

func NewCatalog() *Catalog {
	return &Catalog{
		plans:   make(map[string]*Plan),
		coupons: make(map[string]*Coupon),
	}
}

// Default returns the built-in catalog used when no plans file is present.
func Default() *Catalog {
	c := NewCatalog()
	c.Register(&Plan{ID: Free, Name: "Free", WordsLimit: 1000, RetentionDays: 7,
		Prices: map[string]int64{"usd": 0, "inr": 0}})
	c.Register(&Plan{ID: Pro, Name: "Pro", WordsLimit: 10000, RetentionDays: 30,
		Prices: map[string]int64{"usd": 999, "inr": 79900}})
	c.Register(&Plan{ID: Premium, Name: "Premium", WordsLimit: 50000, RetentionDays: 90,
		Prices: map[string]int64{"usd": 2999, "inr": 239900}})
	c.pricing = WordPricing{
		MinWords:    1000,
		MaxWords:    1000000,
		PerThousand: map[string]int64{"usd": 200, "inr": 14900},
	}
	_ = c.RegisterCoupon(Coupon{Code: "WELCOME20", PercentOff: 20, OncePerUser: true})
	return c
}

func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plans config: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, errors.New("plans config defines no plans")
	}

	c := NewCatalog()
	for i := range file.Plans {
		p := &file.Plans[i]
		if p.ID == "" || p.RetentionDays <= 0 {
			return nil, fmt.Errorf("plan %q: id and retention_days are required", p.ID)
		}
		c.Register(p)
	}
	if c.Get(Free) == nil {
		return nil, errors.New("plans config must define the free plan")
	}
	c.pricing = file.WordPricing
	for _, coupon := range file.Coupons {
		if err := c.RegisterCoupon(coupon); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RegisterCoupon adds or replaces a coupon. Codes are case-insensitive.
func (c *Catalog) RegisterCoupon(coupon Coupon) error {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Code == "" {
		return errors.New("coupon code is required")
	}
	if coupon.PercentOff <= 0 || coupon.PercentOff > 100 {
		return fmt.Errorf("coupon %q: percent_off must be within 1..100", coupon.Code)
	}
	if coupon.MaxRedemptions < 0 {
		return fmt.Errorf("coupon %q: max_redemptions must not be negative", coupon.Code)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupons[coupon.Code] = &coupon
	return nil
}

func (c *Catalog) Register(p *Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[p.ID] = p
}

func (c *Catalog) Get(id string) *Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plans[id]
}

func (c *Catalog) Exists(id string) bool {
	return c.Get(id) != nil
}

func (c *Catalog) All() []*Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]*Plan, 0, len(c.plans))
	for _, p := range c.plans {
		result = append(result, p)
	}
	return result
}

// Retention is the history retention window for a plan. Unknown plans fall
// back to the free window.
func (c *Catalog) Retention(id string) time.Duration {
	p := c.Get(id)
	if p == nil {
		p = c.Get(Free)
	}
	if p == nil {
		return 7 * 24 * time.Hour
	}
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

func (c *Catalog) PlanPrice(id, currency string) (int64, error) {
	p := c.Get(id)
	if p == nil {
		return 0, ErrUnknownPlan
	}
	price, ok := p.Prices[strings.ToLower(currency)]
	if !ok {
		return 0, ErrUnknownCurrency
	}
	return price, nil
}

// WordPrice returns the price in minor units for a word pack. Partial
// thousands are charged proportionally and rounded up.
func (c *Catalog) WordPrice(words int64, currency string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if words < c.pricing.MinWords || (c.pricing.MaxWords > 0 && words > c.pricing.MaxWords) {
		return 0, fmt.Errorf("word count must be between %d and %d", c.pricing.MinWords, c.pricing.MaxWords)
	}
	per, ok := c.pricing.PerThousand[strings.ToLower(currency)]
	if !ok {
		return 0, ErrUnknownCurrency
	}
	return (words*per + 999) / 1000, nil
}

// Coupon looks a code up. An empty code returns nil without error.
func (c *Catalog) Coupon(code string) (*Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	coupon, ok := c.coupons[code]
	if !ok {
		return nil, ErrUnknownCoupon
	}
	cp := *coupon
	return &cp, nil
}
