package scanner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robinhood-fs/rbh/internal/ids"
)

// Task is a DirectoryTask: one pending or in-flight directory to scan.
// parent is a non-owning back-reference used only under parent.mu; the
// task tree itself is owned top-down (a task's children slice is the
// only strong reference to its children).
type Task struct {
	Path  string
	Depth int
	DirID ids.ID

	ModTime int64
	Size    int64

	parent *Task

	mu          sync.Mutex
	children    map[*Task]struct{}
	ownWorkDone bool
	released    atomic.Bool

	lastAction atomic.Int64 // unix nano, for hang detection
}

// NewTask returns a root or child task. Pass nil for parent to create the
// scan root.
func NewTask(path string, depth int, dirID ids.ID, parent *Task) *Task {
	t := &Task{Path: path, Depth: depth, DirID: dirID, parent: parent, children: make(map[*Task]struct{})}
	t.touch()
	if parent != nil {
		parent.addChild(t)
	}
	return t
}

func (t *Task) touch() { t.lastAction.Store(time.Now().UnixNano()) }

// LastAction returns the unix-nano timestamp of the task's last recorded
// progress, used by the hang monitor.
func (t *Task) LastAction() int64 { return t.lastAction.Load() }

func (t *Task) addChild(c *Task) {
	t.mu.Lock()
	t.children[c] = struct{}{}
	t.mu.Unlock()
}

// MarkOwnWorkDone records that this task's own directory entries have all
// been processed, then attempts the release cascade.
func (t *Task) MarkOwnWorkDone(onRootDone func()) {
	t.mu.Lock()
	t.ownWorkDone = true
	t.mu.Unlock()
	t.tryRelease(onRootDone)
}

// tryRelease unlinks t from its parent and recurses upward if t has
// finished its own work and has no live children left. Releasing the
// root task (parent == nil) signals scan completion via onRootDone.
func (t *Task) tryRelease(onRootDone func()) {
	t.mu.Lock()
	ready := t.ownWorkDone && len(t.children) == 0
	t.mu.Unlock()
	if !ready {
		return
	}
	// the last child's cascade and this task's own MarkOwnWorkDone can
	// both observe ready; only one may run the release.
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	if t.parent == nil {
		if onRootDone != nil {
			onRootDone()
		}
		return
	}
	t.parent.removeChild(t)
	t.parent.tryRelease(onRootDone)
}

func (t *Task) removeChild(c *Task) {
	t.mu.Lock()
	delete(t.children, c)
	t.mu.Unlock()
}

// ChildCount reports the number of live children. Advisory, used by tests
// and diagnostics.
func (t *Task) ChildCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children)
}
