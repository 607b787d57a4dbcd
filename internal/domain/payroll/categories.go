package payroll

import (
	"github.com/shopspring/decimal"
)

func buildCategoryTree(categories []Category) (map[string]string, error) {
	parents := make(map[string]string, len(categories))
	positions := make(map[string]int, len(categories))
	for i, cat := range categories {
		if cat.Code == "" {
			return nil, &CatalogError{Reason: "category code is required"}
		}
		if _, dup := positions[cat.Code]; dup {
			return nil, &CatalogError{Code: cat.Code, Reason: "duplicate category code"}
		}
		positions[cat.Code] = i
		parents[cat.Code] = cat.ParentCode
	}
	for _, cat := range categories {
		if cat.ParentCode == "" {
			continue
		}
		if _, ok := positions[cat.ParentCode]; !ok {
			return nil, &CatalogError{Code: cat.Code, Reason: "unknown parent category " + cat.ParentCode}
		}
	}
	chain := findCycle(len(categories), func(i int) int {
		p := categories[i].ParentCode
		if p == "" {
			return -1
		}
		return positions[p]
	})
	if chain != nil {
		codes := make([]string, len(chain))
		for i, idx := range chain {
			codes[i] = categories[idx].Code
		}
		return nil, &RuleCycleError{Kind: CycleKindCategory, Chain: codes}
	}
	return parents, nil
}

// categoryTotals is the running aggregator. Reads of unknown codes are zero.
type categoryTotals struct {
	parents map[string]string
	totals  map[string]decimal.Decimal
}

func newCategoryTotals(parents map[string]string) *categoryTotals {
	return &categoryTotals{parents: parents, totals: map[string]decimal.Decimal{}}
}

// add credits amount to code and every ancestor of code.
func (c *categoryTotals) add(code string, amount decimal.Decimal) {
	for code != "" {
		c.totals[code] = c.totals[code].Add(amount)
		code = c.parents[code]
	}
}

func (c *categoryTotals) get(code string) decimal.Decimal {
	return c.totals[code]
}

func (c *categoryTotals) snapshot() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.totals))
	for k, v := range c.totals {
		out[k] = v
	}
	return out
}

func (c *categoryTotals) Attr(name string) (any, error) {
	return c.get(name), nil
}

func (c *categoryTotals) Index(key any) (any, error) {
	s, _ := key.(string)
	return c.get(s), nil
}

func (c *categoryTotals) Contains(key any) (bool, error) {
	s, _ := key.(string)
	_, ok := c.totals[s]
	return ok, nil
}
