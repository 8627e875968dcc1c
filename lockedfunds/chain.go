package lockedfunds

import (
	"context"
	"fmt"

	"github.com/xraph/subvault/types"
)

// Chain is one provider's ledger opened over a Table. Insert and Release
// write buckets through the table and update the in-memory header; the
// caller persists Header() alongside the bucket writes in the same unit of
// work.
type Chain struct {
	header Header
	table  Table
}

// Open binds a header to the table holding its buckets.
func Open(h Header, t Table) *Chain {
	return &Chain{header: h, table: t}
}

// Header returns the current header.
func (c *Chain) Header() Header { return c.header }

// Insert adds amount to the bucket at day, creating the bucket in sorted
// position when the day is not live yet.
func (c *Chain) Insert(ctx context.Context, day DayID, amount types.Amount) error {
	h := c.header

	switch {
	case h.Count == 0:
		if err := c.put(ctx, Bucket{Day: day, Amount: amount, Next: day}); err != nil {
			return err
		}
		c.header = Header{Head: day, Back: day, Count: 1}
		return nil

	case day < h.Head:
		if err := c.put(ctx, Bucket{Day: day, Amount: amount, Next: h.Head}); err != nil {
			return err
		}
		c.header.Head = day
		c.header.Count++
		return nil

	case day > h.Back:
		back, err := c.get(ctx, h.Back)
		if err != nil {
			return err
		}
		back.Next = day
		if err := c.put(ctx, back); err != nil {
			return err
		}
		if err := c.put(ctx, Bucket{Day: day, Amount: amount, Next: day}); err != nil {
			return err
		}
		c.header.Back = day
		c.header.Count++
		return nil
	}

	// Head <= day <= Back. Walk until the day matches or falls in a gap.
	cur := h.Head
	for hops := uint64(0); hops < h.Count; hops++ {
		b, err := c.get(ctx, cur)
		if err != nil {
			return err
		}
		if b.Day == day {
			if b.Amount, err = b.Amount.Add(amount); err != nil {
				return fmt.Errorf("lockedfunds: insert day %d: %w", day, err)
			}
			return c.put(ctx, b)
		}
		if cur == h.Back {
			break
		}
		if day < b.Next {
			if err := c.put(ctx, Bucket{Day: day, Amount: amount, Next: b.Next}); err != nil {
				return err
			}
			b.Next = day
			if err := c.put(ctx, b); err != nil {
				return err
			}
			c.header.Count++
			return nil
		}
		cur = b.Next
	}

	return fmt.Errorf("%w: day %d not placed between head %d and back %d", ErrCorrupt, day, h.Head, h.Back)
}

// Release subtracts amount from the bucket at day. The bucket stays in the
// chain even when it reaches zero.
func (c *Chain) Release(ctx context.Context, day DayID, amount types.Amount) error {
	if c.header.Count == 0 || day < c.header.Head || day > c.header.Back {
		return fmt.Errorf("%w: release day %d outside live chain", ErrCorrupt, day)
	}
	b, err := c.get(ctx, day)
	if err != nil {
		return err
	}
	if b.Amount < amount {
		return fmt.Errorf("%w: day %d holds %d, release %d", ErrInsufficientLocked, day, b.Amount, amount)
	}
	b.Amount -= amount
	return c.put(ctx, b)
}

// DrainResult is the outcome of Drain, applied with Commit.
type DrainResult struct {
	Total    types.Amount
	NewHead  DayID
	Consumed uint64
}

// Drain sums every live bucket with Day <= cutoff. It reads only; the header
// moves when the caller commits the result.
func (c *Chain) Drain(ctx context.Context, cutoff DayID) (DrainResult, error) {
	h := c.header
	res := DrainResult{NewHead: h.Head}

	cur := h.Head
	for res.Consumed < h.Count {
		b, err := c.get(ctx, cur)
		if err != nil {
			return DrainResult{}, err
		}
		if b.Day > cutoff {
			break
		}
		if res.Total, err = res.Total.Add(b.Amount); err != nil {
			return DrainResult{}, fmt.Errorf("lockedfunds: drain: %w", err)
		}
		res.Consumed++
		if cur == h.Back {
			break
		}
		cur = b.Next
		res.NewHead = cur
	}

	return res, nil
}

// Commit advances the header past the buckets a Drain consumed.
func (c *Chain) Commit(res DrainResult) error {
	if res.Consumed > c.header.Count {
		return fmt.Errorf("%w: commit %d buckets, only %d live", ErrCorrupt, res.Consumed, c.header.Count)
	}
	c.header.Count -= res.Consumed
	if c.header.Count == 0 {
		c.header = Header{}
		return nil
	}
	c.header.Head = res.NewHead
	return nil
}

// Walk visits live buckets from head to back, failing with ErrCorrupt if
// days do not strictly increase or the walk does not end at back.
func (c *Chain) Walk(ctx context.Context, fn func(Bucket) error) error {
	cur := c.header.Head
	var prev DayID
	for i := uint64(0); i < c.header.Count; i++ {
		b, err := c.get(ctx, cur)
		if err != nil {
			return err
		}
		if i > 0 && b.Day <= prev {
			return fmt.Errorf("%w: day %d follows %d", ErrCorrupt, b.Day, prev)
		}
		if err := fn(b); err != nil {
			return err
		}
		prev = b.Day
		cur = b.Next
	}
	if c.header.Count > 0 && prev != c.header.Back {
		return fmt.Errorf("%w: walk ended at %d, back is %d", ErrCorrupt, prev, c.header.Back)
	}
	return nil
}

func (c *Chain) get(ctx context.Context, day DayID) (Bucket, error) {
	b, ok, err := c.table.Bucket(ctx, day)
	if err != nil {
		return Bucket{}, err
	}
	if !ok {
		return Bucket{}, fmt.Errorf("%w: missing bucket for day %d", ErrCorrupt, day)
	}
	return b, nil
}

func (c *Chain) put(ctx context.Context, b Bucket) error {
	return c.table.PutBucket(ctx, b)
}
