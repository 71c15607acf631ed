//go:build !debug
// +build !debug

package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReleaseWithoutAcquireLeavesCounters(t *testing.T) {
	tk := New()
	holder := tk.NewHolder("holder")
	stranger := tk.NewHolder("stranger")

	holder.Acquire(false, true)
	before := tk.Stats()

	stranger.Release(false, true)
	assert.Equal(t, before, tk.Stats())

	holder.Release(false, true)
	assert.Equal(t, Stats{}, tk.Stats())
}

func TestIssueWithoutRevokeIsRefused(t *testing.T) {
	tk := New()
	h := tk.NewHolder("control")

	h.Issue(false)
	h.Issue(true)
	assert.Equal(t, Stats{}, tk.Stats())
}

func TestAtomicIssueByOtherHolderIsRefused(t *testing.T) {
	tk := New()
	rewirer := tk.NewHolder("rewire")
	stranger := tk.NewHolder("speed")

	rewirer.Revoke(true)
	before := tk.Stats()

	done := make(chan struct{})
	go func() {
		stranger.Issue(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("atomic issue by a stranger blocked")
	}
	assert.Equal(t, before, tk.Stats())

	rewirer.Issue(true)
	assert.Equal(t, Stats{}, tk.Stats())
}

func TestRevokeInsideOwnAtomicRevokeIsRefused(t *testing.T) {
	tk := New()
	rewirer := tk.NewHolder("rewire")

	rewirer.Revoke(true)
	before := tk.Stats()

	done := make(chan struct{})
	go func() {
		rewirer.Revoke(true)
		rewirer.Revoke(false)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested revoke blocked")
	}
	assert.Equal(t, before, tk.Stats())

	rewirer.Issue(true)
	assert.Equal(t, Stats{}, tk.Stats())
}
