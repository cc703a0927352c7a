package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// Submitter is the narrow slice of pipeline.Pipeline the scanner depends
// on: handing a freshly discovered entry to GET_ID/GET_INFO_DB.
type Submitter interface {
	Submit(ctx context.Context, id ids.ID, parent ids.ID, name string, fsAttrs *attrs.AttrSet) error
}

// IgnoreFunc reports whether a directory entry should be skipped
// entirely (neither descended into nor handed to the pipeline).
type IgnoreFunc func(path string, st *unix.Stat_t) bool

// Stats are the per-scan aggregate counters surfaced via the admin FUSE
// view's /scan/stats file.
type Stats struct {
	EntriesScanned atomic.Int64
	Directories    atomic.Int64
	Errors         atomic.Int64
}

// Config configures a Scanner run.
type Config struct {
	Root             string
	Workers          int
	StayInFS         bool
	UseMDSDirectStat bool
	Ignore           IgnoreFunc
	ScanOpTimeout    time.Duration
	ExitOnTimeout    bool
	CheckInterval    time.Duration
	IDFactory        func(dev, ino uint64, ctime int64) ids.ID
}

// Scanner walks Config.Root with Config.Workers goroutines pulling from a
// TaskStack, handing discovered non-directory entries to a Submitter.
type Scanner struct {
	cfg    Config
	stack  *TaskStack
	sub    Submitter
	stats  Stats
	logger zerolog.Logger

	forceStop atomic.Bool
	rootDev   uint64
	scanStart int64

	doneOnce sync.Once
	done     chan struct{}

	tasksMu sync.Mutex
	active  map[*Task]struct{}
}

// New returns a Scanner ready to Run.
func New(cfg Config, sub Submitter) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.IDFactory == nil {
		cfg.IDFactory = func(dev, ino uint64, ctime int64) ids.ID {
			return ids.DevInoID{Dev: dev, Ino: ino, Ctime: ctime}
		}
	}
	return &Scanner{
		cfg:    cfg,
		stack:  NewTaskStack(),
		sub:    sub,
		logger: log.With().Str("component", "scanner").Logger(),
		done:   make(chan struct{}),
		active: make(map[*Task]struct{}),
	}
}

// ForceStop requests cooperative cancellation, checked between directory
// entries and between getdents batches.
func (s *Scanner) ForceStop() { s.forceStop.Store(true) }

func (s *Scanner) stopRequested() bool { return s.forceStop.Load() }

// Stats returns the scanner's live counters.
func (s *Scanner) Stats() *Stats { return &s.stats }

// Done is closed when the root task's release cascade completes.
func (s *Scanner) Done() <-chan struct{} { return s.done }

// Run launches Config.Workers goroutines and the hang monitor, blocking
// until the scan completes or ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.scanStart = time.Now().UnixNano()

	var st unix.Stat_t
	if err := unix.Stat(s.cfg.Root, &st); err != nil {
		return err
	}
	s.rootDev = uint64(st.Dev)

	root := NewTask(s.cfg.Root, 0, s.rootIDFor(&st), nil)
	s.stack.Push(root)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error { return s.worker(gctx) })
	}
	if s.cfg.ScanOpTimeout > 0 {
		g.Go(func() error { return s.monitor(gctx) })
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case <-s.done:
		// release the workers still blocked in Pop, then reap them.
		cancel()
		<-done
		return nil
	case err := <-done:
		return err
	}
}

func (s *Scanner) rootIDFor(st *unix.Stat_t) ids.ID {
	return s.cfg.IDFactory(uint64(st.Dev), st.Ino, int64(st.Ctim.Sec))
}

func (s *Scanner) trackTask(t *Task) {
	s.tasksMu.Lock()
	s.active[t] = struct{}{}
	s.tasksMu.Unlock()
}

func (s *Scanner) untrackTask(t *Task) {
	s.tasksMu.Lock()
	delete(s.active, t)
	s.tasksMu.Unlock()
}

func (s *Scanner) markScanComplete() {
	s.doneOnce.Do(func() { close(s.done) })
}

// worker pops tasks from the stack until the scan completes or ctx is
// cancelled, scanning one directory per task.
func (s *Scanner) worker(ctx context.Context) error {
	for {
		if s.stopRequested() {
			return nil
		}
		select {
		case <-s.done:
			return nil
		default:
		}
		task, ok := s.stack.Pop(ctx)
		if !ok {
			select {
			case <-s.done:
				return nil
			default:
				return ctx.Err()
			}
		}
		// only a task actively being scanned counts for hang detection;
		// queued tasks can sit in the stack arbitrarily long.
		s.trackTask(task)
		s.scanDir(ctx, task)
	}
}

// direntBufSize is the getdents batch buffer: one syscall returns as
// many records as fit here.
const direntBufSize = 64 << 10

// openDir opens path as a directory with O_NOATIME so the scan does not
// perturb atime on the tree it is reading, transparently retrying
// without it on EPERM (O_NOATIME needs file ownership or CAP_FOWNER).
func openDir(path string) (int, error) {
	flags := unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC
	fd, err := unix.Openat(unix.AT_FDCWD, path, flags|unix.O_NOATIME, 0)
	if errors.Is(err, unix.EPERM) {
		fd, err = unix.Openat(unix.AT_FDCWD, path, flags, 0)
	}
	return fd, err
}

// readDirBatch reads one getdents batch from fd into buf and returns
// the entry names it carried ("." and ".." excluded). An empty slice
// with a nil error means end of directory.
func readDirBatch(fd int, buf []byte) ([]string, error) {
	n, err := unix.Getdents(fd, buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	_, _, names := unix.ParseDirent(buf[:n], -1, nil)
	return names, nil
}

// scanDir opens task's directory (falling back transparently if
// O_NOATIME is refused), reads its entries in getdents batches, and for
// each one either pushes a child task or submits a pipeline op.
func (s *Scanner) scanDir(ctx context.Context, task *Task) {
	task.touch()
	s.stats.Directories.Add(1)

	fd, err := openDir(task.Path)
	if err != nil {
		s.logger.Error().Err(err).Str("path", task.Path).Msg("scanner: open dir failed")
		s.stats.Errors.Add(1)
		s.untrackTask(task)
		s.finishTask(task)
		return
	}
	defer unix.Close(fd)

	buf := make([]byte, direntBufSize)
batches:
	for !s.stopRequested() {
		names, err := readDirBatch(fd, buf)
		if err != nil {
			s.logger.Error().Err(err).Str("path", task.Path).Msg("scanner: getdents failed")
			s.stats.Errors.Add(1)
			break
		}
		if len(names) == 0 {
			break
		}
		for _, name := range names {
			if s.stopRequested() {
				break batches
			}
			task.touch()
			s.visitEntry(ctx, task, fd, name)
		}
	}

	s.untrackTask(task)
	s.finishTask(task)
}

func (s *Scanner) visitEntry(ctx context.Context, parent *Task, dirfd int, name string) {
	path := filepath.Join(parent.Path, name)
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ESTALE) {
			return // vanished between getdents and stat; not an error
		}
		s.logger.Warn().Err(err).Str("path", path).Msg("scanner: stat failed")
		s.stats.Errors.Add(1)
		return
	}

	if s.cfg.Ignore != nil && s.cfg.Ignore(path, &st) {
		return
	}
	if s.cfg.StayInFS && uint64(st.Dev) != s.rootDev {
		s.logger.Debug().Str("path", path).Msg("scanner: device boundary, skipping")
		return
	}

	id := s.cfg.IDFactory(uint64(st.Dev), st.Ino, int64(st.Ctim.Sec))
	parentID := parent.DirID

	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		child := NewTask(path, parent.Depth+1, id, parent)
		s.stack.Push(child)
		s.submitDirEntry(ctx, id, parentID, name, &st)
		return
	}

	s.stats.EntriesScanned.Add(1)
	a := s.buildFSAttrs(name, path, &st)
	if err := s.sub.Submit(ctx, id, parentID, name, a); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("scanner: submit failed")
		s.stats.Errors.Add(1)
	}
}

// submitDirEntry pushes a pipeline op for the directory itself (so its
// dircount/namespace attrs get a database row), separate from the child
// task that will scan its contents.
func (s *Scanner) submitDirEntry(ctx context.Context, id, parentID ids.ID, name string, st *unix.Stat_t) {
	a := attrs.NewAttrSet()
	a.Set(attrs.ATTR_type, attrs.StrValue(string(attrs.TypeDir)))
	a.Set(attrs.ATTR_mode, attrs.UintValue(uint64(st.Mode)))
	a.Set(attrs.ATTR_uid, attrs.UintValue(uint64(st.Uid)))
	a.Set(attrs.ATTR_gid, attrs.UintValue(uint64(st.Gid)))
	a.Set(attrs.ATTR_name, attrs.StrValue(name))
	a.Set(attrs.ATTR_parent_id, attrs.EntryIDValue(parentID))
	a.Set(attrs.ATTR_md_update, attrs.BigintValue(s.scanStart))
	a.Set(attrs.ATTR_path_update, attrs.BigintValue(s.scanStart))
	if err := s.sub.Submit(ctx, id, parentID, name, a); err != nil {
		s.logger.Error().Err(err).Msg("scanner: submit dir entry failed")
		s.stats.Errors.Add(1)
	}
}

func (s *Scanner) buildFSAttrs(name, path string, st *unix.Stat_t) *attrs.AttrSet {
	a := attrs.NewAttrSet()
	var typ attrs.EntryType
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		typ = attrs.TypeFile
	case unix.S_IFLNK:
		typ = attrs.TypeSymlink
	default:
		typ = attrs.TypeSpecial
	}
	a.Set(attrs.ATTR_type, attrs.StrValue(string(typ)))
	a.Set(attrs.ATTR_size, attrs.UintValue(uint64(st.Size)))
	a.Set(attrs.ATTR_blocks, attrs.UintValue(uint64(st.Blocks)))
	a.Set(attrs.ATTR_mode, attrs.UintValue(uint64(st.Mode)))
	a.Set(attrs.ATTR_uid, attrs.UintValue(uint64(st.Uid)))
	a.Set(attrs.ATTR_gid, attrs.UintValue(uint64(st.Gid)))
	a.Set(attrs.ATTR_last_access, attrs.BigintValue(st.Atim.Sec))
	a.Set(attrs.ATTR_last_mod, attrs.BigintValue(st.Mtim.Sec))
	a.Set(attrs.ATTR_nlink, attrs.UintValue(uint64(st.Nlink)))
	a.Set(attrs.ATTR_name, attrs.StrValue(name))
	a.Set(attrs.ATTR_md_update, attrs.BigintValue(s.scanStart))
	a.Set(attrs.ATTR_path_update, attrs.BigintValue(s.scanStart))

	if typ == attrs.TypeSymlink {
		if target, err := os.Readlink(path); err == nil {
			a.Set(attrs.ATTR_link, attrs.StrValue(target))
		}
	}
	return a
}

// finishTask marks task's own work done and lets the release cascade run;
// releasing the root task signals scan completion.
func (s *Scanner) finishTask(task *Task) {
	task.MarkOwnWorkDone(s.markScanComplete)
}
