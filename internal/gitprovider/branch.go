package gitprovider

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// BranchPrefix starts every branch the publisher creates.
const BranchPrefix = "automated"

const maxLabelLen = 40

// AutomatedBranchName returns automated_<ts> or automated_<label>_<ts>.
// The label is sanitized with SanitizeLabel.
func AutomatedBranchName(label string, ts int64) string {
	stamp := strconv.FormatInt(ts, 10)
	if l := SanitizeLabel(label); l != "" {
		return BranchPrefix + "_" + l + "_" + stamp
	}
	return BranchPrefix + "_" + stamp
}

// SanitizeLabel lowercases s, maps anything outside [a-z0-9] to a hyphen,
// collapses runs of hyphens and truncates to 40 characters.
func SanitizeLabel(s string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, s)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if len(slug) > maxLabelLen {
		slug = strings.TrimRight(slug[:maxLabelLen], "-")
	}
	return slug
}

// BranchClock hands out unix timestamps for branch names that strictly
// increase within the process, so two runs started in the same second
// still get distinct branches.
type BranchClock struct {
	// Now defaults to time.Now.
	Now  func() time.Time
	last atomic.Int64
}

// Next returns max(now, previous+1).
func (c *BranchClock) Next() int64 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	ts := now().Unix()
	for {
		last := c.last.Load()
		next := ts
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
