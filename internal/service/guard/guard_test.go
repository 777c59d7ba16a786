package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civium/rewards-core/internal/model/action"
	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

type completionKey struct {
	memberID string
	actionID string
	aType    action.Type
}

type fakeCompletionRepo struct {
	completions map[completionKey]struct{}
	proofs      map[string]struct{}
	balance     int64
}

func newFakeCompletionRepo() *fakeCompletionRepo {
	return &fakeCompletionRepo{
		completions: make(map[completionKey]struct{}),
		proofs:      make(map[string]struct{}),
	}
}

func (f *fakeCompletionRepo) Exists(_ context.Context,
	memberID, actionID string, actionType action.Type,
) (bool, error) {
	_, ok := f.completions[completionKey{memberID, actionID, actionType}]
	return ok, nil
}

func (f *fakeCompletionRepo) ProofUsed(_ context.Context, proofURL string) (bool, error) {
	_, ok := f.proofs[proofURL]
	return ok, nil
}

func (f *fakeCompletionRepo) ReserveAndCredit(_ context.Context,
	c *action.Completion, amount int64, source ledger.Source,
) (ledger.Transaction, error) {
	key := completionKey{c.MemberID, c.ActionID, c.Type}
	if _, ok := f.completions[key]; ok {
		return ledger.Transaction{}, serviceerrs.ErrDuplicateAction
	}
	if c.ProofURL != "" {
		if _, ok := f.proofs[c.ProofURL]; ok {
			return ledger.Transaction{}, serviceerrs.ErrProofAlreadyUsed
		}
		f.proofs[c.ProofURL] = struct{}{}
	}
	f.completions[key] = struct{}{}
	f.balance += amount
	return ledger.Transaction{
		MemberID:     c.MemberID,
		Type:         ledger.TypeCredit,
		Source:       source,
		Amount:       amount,
		BalanceAfter: f.balance,
	}, nil
}

func TestGuard_CheckAndReserve(t *testing.T) {
	repo := newFakeCompletionRepo()
	g := New(repo)
	ctx := context.Background()

	d, err := g.CheckAndReserve(ctx, "m1", "quiz-1", action.TypeQuiz, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	_, err = g.ReserveAndCredit(ctx, &action.Completion{
		MemberID: "m1",
		ActionID: "quiz-1",
		Type:     action.TypeQuiz,
	}, 20, ledger.SourceQuiz)
	require.NoError(t, err)

	d, err = g.CheckAndReserve(ctx, "m1", "quiz-1", action.TypeQuiz, "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "already completed", d.Reason)

	// same action id under a different type is a separate completion
	d, err = g.CheckAndReserve(ctx, "m1", "quiz-1", action.TypeTask, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// and so is the same action for another member
	d, err = g.CheckAndReserve(ctx, "m2", "quiz-1", action.TypeQuiz, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuard_CheckAndReserve_proofReuse(t *testing.T) {
	repo := newFakeCompletionRepo()
	g := New(repo)
	ctx := context.Background()

	const proof = "https://img.example/receipt.jpg"
	_, err := g.ReserveAndCredit(ctx, &action.Completion{
		MemberID: "m1",
		ActionID: "task-1",
		Type:     action.TypeTask,
		ProofURL: proof,
	}, 25, ledger.SourceTask)
	require.NoError(t, err)

	// the proof is burned globally, even for other members and tasks
	d, err := g.CheckAndReserve(ctx, "m2", "task-9", action.TypeTask, proof)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "proof already used", d.Reason)
}

func TestGuard_ReserveAndCredit_duplicate(t *testing.T) {
	repo := newFakeCompletionRepo()
	g := New(repo)
	ctx := context.Background()

	c := action.Completion{
		MemberID: "m1",
		ActionID: "vote-1",
		Type:     action.TypeVote,
	}
	tr, err := g.ReserveAndCredit(ctx, &c, 10, ledger.SourceVote)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tr.BalanceAfter)

	_, err = g.ReserveAndCredit(ctx, &c, 10, ledger.SourceVote)
	assert.ErrorIs(t, err, serviceerrs.ErrDuplicateAction)
	assert.Equal(t, int64(10), repo.balance)
}
