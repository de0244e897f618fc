package costing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigata/internal/core/id"
)

func TestReplayer_ReceiptsAndIssues(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := NewReplayer()

	r.ApplyReceipt(id.New(), base, money("200"), qty(100))
	r.ApplyReceipt(id.New(), base.Add(time.Hour), money("220"), qty(50))

	cost := r.ApplyIssue(qty(120))

	assert.Equal(t, qty(30), r.OnHand())
	assert.True(t, r.Shortfall().IsZero())
	assert.True(t, cost.Equal(money("24400")))
	// 30 left in the newer lot at 220.
	assert.True(t, r.Value().Equal(money("6600")))
}

func TestReplayer_ShortfallGoesNegative(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := NewReplayer()

	r.ApplyReceipt(id.New(), base, money("100"), qty(10))
	r.ApplyIssue(qty(25))

	assert.Equal(t, qty(-15), r.OnHand())
	assert.Equal(t, qty(15), r.Shortfall())
	// Valuation floors at zero; negative stock never produces negative value.
	assert.True(t, r.Value().IsZero())
}

func TestReplayer_IssueConsumesOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := NewReplayer()

	// Receipts applied newest-first; replay still consumes oldest-first.
	r.ApplyReceipt(id.New(), base.Add(time.Hour), money("300"), qty(10))
	r.ApplyReceipt(id.New(), base, money("100"), qty(10))

	cost := r.ApplyIssue(qty(10))
	assert.True(t, cost.Equal(money("1000")))

	lots := r.Lots()
	require.Len(t, lots, 2)
	assert.True(t, lots[0].Remaining.IsZero())
	assert.Equal(t, qty(10), lots[1].Remaining)
}

func TestReplayer_EmptyState(t *testing.T) {
	r := NewReplayer()
	assert.True(t, r.OnHand().IsZero())
	assert.True(t, r.Value().IsZero())
	assert.Empty(t, r.Lots())
}
