package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDepthFirstScanOrder is end-to-end scenario #4: for a tree
// /r/{a,b/{c,d}}, a single scanner thread pops tasks deepest-first,
// siblings in LIFO order.
func TestDepthFirstScanOrder(t *testing.T) {
	stack := NewTaskStack()
	r := NewTask("/r", 0, nil, nil)
	a := NewTask("/r/a", 1, nil, r)
	b := NewTask("/r/b", 1, nil, r)
	c := NewTask("/r/b/c", 2, nil, b)
	d := NewTask("/r/b/d", 2, nil, b)

	stack.Push(r)
	stack.Push(a)
	stack.Push(b)
	stack.Push(c)
	stack.Push(d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	for i := 0; i < 5; i++ {
		task, ok := stack.Pop(ctx)
		require.True(t, ok)
		order = append(order, task.Path)
	}

	require.Equal(t, []string{"/r/b/d", "/r/b/c", "/r/b", "/r/a", "/r"}, order)
}

func TestTaskStackPopBlocksUntilPush(t *testing.T) {
	stack := NewTaskStack()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok := stack.Pop(ctx)
	require.False(t, ok, "pop on empty stack must block until ctx deadline")
}

// TestReleaseCascade exercises the DirectoryTask completion cascade: a
// leaf's release must propagate to the root only once every sibling has
// also finished.
func TestReleaseCascade(t *testing.T) {
	root := NewTask("/r", 0, nil, nil)
	a := NewTask("/r/a", 1, nil, root)
	b := NewTask("/r/b", 1, nil, root)

	done := make(chan struct{})
	onDone := func() { close(done) }

	a.MarkOwnWorkDone(onDone)
	select {
	case <-done:
		t.Fatal("root must not release while b is still live")
	default:
	}

	require.Equal(t, 1, root.ChildCount())
	b.MarkOwnWorkDone(onDone)
	root.MarkOwnWorkDone(onDone)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("root release cascade did not fire")
	}
}
