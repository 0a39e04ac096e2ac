package room

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id, participant string
	frames          chan []byte
}

func newMember(id, participant string, buf int) *fakeMember {
	return &fakeMember{id: id, participant: participant, frames: make(chan []byte, buf)}
}

func (f *fakeMember) ID() string            { return f.id }
func (f *fakeMember) ParticipantID() string { return f.participant }
func (f *fakeMember) Send(frame []byte) bool {
	select {
	case f.frames <- frame:
		return true
	default:
		return false
	}
}

func (f *fakeMember) drain() []string {
	var out []string
	for {
		select {
		case b := <-f.frames:
			out = append(out, string(b))
		default:
			return out
		}
	}
}

func TestHub_Targeting(t *testing.T) {
	h := NewHub()
	w := newMember("c1", "white", 8)
	b := newMember("c2", "black", 8)
	other := newMember("c3", "someone", 8)
	h.Join("s1", w)
	h.Join("s1", w)
	h.Join("s1", b)
	h.Join("s2", other)
	require.Equal(t, 2, h.Count("s1"))

	h.Broadcast("s1", []byte("all"))
	h.SendTo("s1", "white", []byte("to-white"))
	h.SendTo("s1", "black", []byte("to-black"))

	require.Equal(t, []string{"all", "to-white"}, w.drain())
	require.Equal(t, []string{"all", "to-black"}, b.drain())
	require.Empty(t, other.drain())
}

func TestHub_LeaveAndDrop(t *testing.T) {
	h := NewHub()
	w := newMember("c1", "white", 8)
	b := newMember("c2", "black", 8)
	h.Join("s1", w)
	h.Join("s2", w)
	h.Join("s1", b)

	h.Drop(w)
	require.Equal(t, 1, h.Count("s1"))
	require.Zero(t, h.Count("s2"))

	h.Leave("s1", "c2")
	require.Zero(t, h.Count("s1"))

	h.Join("s1", w)
	h.Join("s1", b)
	h.LeaveAll("s1")
	h.Broadcast("s1", []byte("late"))
	require.Empty(t, w.drain())
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	h := NewHub()
	slow := newMember("c1", "white", 1)
	fast := newMember("c2", "black", 4)
	h.Join("s1", slow)
	h.Join("s1", fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			h.Broadcast("s1", []byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full member")
	}
	require.Len(t, slow.drain(), 1)
	require.Len(t, fast.drain(), 3)
}

func TestRelay_CrossInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a, b := NewHub(), NewHub()
	require.NoError(t, NewRelay(rdb, "").Start(ctx, a))
	require.NoError(t, NewRelay(rdb, "").Start(ctx, b))

	local := newMember("a1", "white", 4)
	remote := newMember("b1", "black", 4)
	a.Join("s1", local)
	b.Join("s1", remote)

	a.SendTo("s1", "black", []byte("hello"))
	require.Eventually(t, func() bool {
		select {
		case f := <-remote.frames:
			return string(f) == "hello"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, local.drain())

	a.LeaveAll("s1")
	require.Eventually(t, func() bool { return b.Count("s1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_PublishNeverBlocksBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// attached but never started: nothing drains the queue
	h := NewHub()
	r := NewRelay(rdb, "")
	h.AttachRelay(r)
	m := newMember("c1", "white", 1)
	h.Join("s1", m)

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultRelayQueue*2; i++ {
			h.Broadcast("s1", []byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on relay publish")
	}
	require.Len(t, r.queue, DefaultRelayQueue)
	require.Len(t, m.drain(), 1)
}
